package sourceload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vforwater/vforwater-loader/internal/domain"
	"github.com/vforwater/vforwater-loader/internal/platform/runid"
	"github.com/vforwater/vforwater-loader/internal/storage"
	"github.com/vforwater/vforwater-loader/internal/workerpool"
)

// MetadataFile is written next to the data of file-backed artifacts.
const MetadataFile = "metadata.json"

// loadFiles copies every file matched by the datasource path into a
// directory artifact. Files are copied concurrently on the shared pool.
func (l *Loader) loadFiles(ctx context.Context, pool *workerpool.Pool, store storage.Store, req Request) (string, error) {
	desc := req.Descriptor
	pattern := desc.Datasource.Path
	objects, err := storage.Match(ctx, store, pattern)
	if err != nil {
		return "", fmt.Errorf("match %q: %w", pattern, err)
	}
	if len(objects) == 0 {
		return "", nil
	}

	tmpDir, err := os.MkdirTemp(l.outDir, "."+desc.Slug()+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	base := staticDir(pattern)
	futures := make([]*workerpool.Future[int64], 0, len(objects))
	var firstErr error
	for _, obj := range objects {
		rel := relativeKey(base, obj.Key)
		dst := filepath.Join(tmpDir, filepath.FromSlash(rel))
		f, err := workerpool.Submit(ctx, pool, func(ctx context.Context) (int64, error) {
			return copyObject(ctx, store, obj.Key, dst)
		})
		if err != nil {
			firstErr = fmt.Errorf("submit copy of %s: %w", obj.Key, err)
			break
		}
		futures = append(futures, f)
	}

	// Every submitted copy is awaited before the temp dir may be removed.
	// The copies observe ctx themselves.
	waitCtx := context.WithoutCancel(ctx)
	var total int64
	for _, f := range futures {
		n, err := f.Wait(waitCtx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		total += n
	}
	if firstErr != nil {
		return "", firstErr
	}

	if err := writeMetadata(filepath.Join(tmpDir, MetadataFile), runid.FromContext(ctx), desc); err != nil {
		return "", err
	}

	final := filepath.Join(l.outDir, desc.Slug())
	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("replace %s: %w", final, err)
	}
	if err := os.Rename(tmpDir, final); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	committed = true
	l.logger.Debug("files copied", "dataset_id", desc.ID, "files", len(objects), "bytes", total, "path", final)
	return final, nil
}

// staticDir is the directory part of pattern that contains no wildcards.
func staticDir(pattern string) string {
	pattern = strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(pattern)), "/")
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		pattern = pattern[:i]
		if j := strings.LastIndex(pattern, "/"); j >= 0 {
			return pattern[:j]
		}
		return ""
	}
	return path.Dir(pattern)
}

func relativeKey(base, key string) string {
	key = strings.TrimPrefix(key, "/")
	if base == "" || base == "." {
		return key
	}
	if rel := strings.TrimPrefix(key, base+"/"); rel != key {
		return rel
	}
	return path.Base(key)
}

func copyObject(ctx context.Context, store storage.Store, key, dst string) (int64, error) {
	r, err := store.Open(ctx, key)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", key, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("copy %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", dst, err)
	}
	return n, nil
}

type metadata struct {
	RunID      string             `json:"run_id,omitempty"`
	ID         int64              `json:"id"`
	UUID       string             `json:"uuid,omitempty"`
	Title      string             `json:"title"`
	Version    int                `json:"version"`
	Variable   domain.Variable    `json:"variable"`
	Location   *domain.Point      `json:"location,omitempty"`
	Datasource *domain.Datasource `json:"datasource,omitempty"`
}

func writeMetadata(path, runID string, desc domain.Descriptor) error {
	data, err := json.MarshalIndent(metadata{
		RunID:      runID,
		ID:         desc.ID,
		UUID:       desc.UUID,
		Title:      desc.Title,
		Version:    desc.Version,
		Variable:   desc.Variable,
		Location:   desc.Location,
		Datasource: desc.Datasource,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
