package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bowerhall/vpload/internal/triples"
)

const statsContentType = "application/x-protobuf"

// Uploader stores objects, e.g. *storage.Client.
type Uploader interface {
	Upload(ctx context.Context, bucket, name string, data []byte, contentType string) error
}

// writeStats puts the serialized statistics at location, a local path or
// an s3://bucket/key URL.
func writeStats(ctx context.Context, up Uploader, location string, data []byte) error {
	if triples.IsObjectLocation(location) {
		bucket, key, err := triples.SplitObjectLocation(location)
		if err != nil {
			return &StatsIOError{Location: location, Err: err}
		}

		if key == "" {
			return &StatsIOError{Location: location, Err: errors.New("missing object key")}
		}

		if up == nil {
			return &StatsIOError{Location: location, Err: errors.New("object storage not configured")}
		}

		if err := up.Upload(ctx, bucket, key, data, statsContentType); err != nil {
			return &StatsIOError{Location: location, Err: err}
		}

		return nil
	}

	if dir := filepath.Dir(location); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &StatsIOError{Location: location, Err: fmt.Errorf("create directory: %w", err)}
		}
	}

	if err := os.WriteFile(location, data, 0644); err != nil {
		return &StatsIOError{Location: location, Err: err}
	}

	return nil
}
