package triples

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

const objectScheme = "s3://"

// ObjectStore is the subset of the storage client needed to read triples
// out of a bucket.
type ObjectStore interface {
	Keys(ctx context.Context, bucket, prefix string) ([]string, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ObjectSource reads triples from s3://bucket/prefix locations.
type ObjectSource struct {
	Store ObjectStore
}

func (s ObjectSource) Scan(ctx context.Context, location string, fn func(Triple) error) error {
	bucket, prefix, err := SplitObjectLocation(location)
	if err != nil {
		return err
	}

	keys, err := s.Store.Keys(ctx, bucket, prefix)
	if err != nil {
		return err
	}

	var data []string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") || hiddenFile(path.Base(k)) {
			continue
		}
		data = append(data, k)
	}

	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, location)
	}

	for _, key := range data {
		if err := s.scanObject(ctx, bucket, key, fn); err != nil {
			return err
		}
	}

	return nil
}

func (s ObjectSource) scanObject(ctx context.Context, bucket, key string, fn func(Triple) error) error {
	obj, err := s.Store.Open(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer obj.Close()

	return Decode(ctx, obj, objectScheme+bucket+"/"+key, fn)
}

// IsObjectLocation reports whether location points into object storage.
func IsObjectLocation(location string) bool {
	return strings.HasPrefix(location, objectScheme)
}

// SplitObjectLocation splits s3://bucket/key into its bucket and key.
func SplitObjectLocation(location string) (string, string, error) {
	if !IsObjectLocation(location) {
		return "", "", fmt.Errorf("not an object location: %s", location)
	}

	rest := strings.TrimPrefix(location, objectScheme)
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", location)
	}

	return bucket, key, nil
}

// Router dispatches to the object source for s3:// locations and to the
// file source for everything else.
type Router struct {
	Files   Source
	Objects Source
}

func (r Router) Scan(ctx context.Context, location string, fn func(Triple) error) error {
	if IsObjectLocation(location) {
		if r.Objects == nil {
			return fmt.Errorf("object storage not configured for %s", location)
		}
		return r.Objects.Scan(ctx, location, fn)
	}

	files := r.Files
	if files == nil {
		files = FileSource{}
	}

	return files.Scan(ctx, location, fn)
}
