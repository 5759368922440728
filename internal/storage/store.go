// Package storage reads the files behind file-backed datasources, either from
// a local data root or from an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("object not found")

// Store abstracts read access to datasource files.
type Store interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Match lists the objects whose key matches pattern, a path.Match pattern
// relative to the store root. A pattern without wildcards matches either the
// object with that key or every object below it.
func Match(ctx context.Context, s Store, pattern string) ([]ObjectInfo, error) {
	pattern = strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(pattern)), "/")
	if pattern == "" {
		return nil, errors.New("empty datasource path")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	prefix := pattern
	wild := false
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		prefix = pattern[:i]
		wild = true
	}

	objects, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		key := strings.TrimPrefix(obj.Key, "/")
		if wild {
			if ok, _ := path.Match(pattern, key); !ok {
				continue
			}
		} else if key != pattern && !strings.HasPrefix(key, pattern+"/") {
			continue
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
