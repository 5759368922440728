package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vforwater/vforwater-loader/internal/platform/env"
)

// Config describes the S3-compatible store that backs s3 datasources. An
// empty Endpoint disables the store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("VFW_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  strings.TrimSpace(env.String("VFW_MINIO_ENDPOINT", "")),
		AccessKey: env.String("VFW_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("VFW_MINIO_SECRET_KEY", ""),
		Region:    env.String("VFW_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("VFW_MINIO_BUCKET", "vforwater"),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
