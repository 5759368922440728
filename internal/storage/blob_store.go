package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// BlobStore reads datasource files from a gocloud bucket, typically a local
// data root opened with OpenLocal.
type BlobStore struct {
	bucket *blob.Bucket
}

// OpenLocal opens dir as a read-only data root.
func OpenLocal(dir string) (*BlobStore, error) {
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open data root %s: %w", dir, err)
	}
	return &BlobStore{bucket: bucket}, nil
}

// OpenURL opens any bucket URL registered with gocloud (file:// by default).
func OpenURL(ctx context.Context, url string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &BlobStore{bucket: bucket}, nil
}

func (s *BlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if s == nil || s.bucket == nil {
		return nil, fmt.Errorf("blob store not initialized")
	}
	out := make([]ObjectInfo, 0)
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.ModTime})
	}
	return out, nil
}

func (s *BlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.bucket == nil {
		return nil, fmt.Errorf("blob store not initialized")
	}
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return r, nil
}

func (s *BlobStore) Close() error {
	if s == nil || s.bucket == nil {
		return nil
	}
	return s.bucket.Close()
}
