package triples

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSource reads triples from a local file or from every data file of a
// local directory.
type FileSource struct{}

func (FileSource) Scan(ctx context.Context, location string, fn func(Triple) error) error {
	path := strings.TrimPrefix(location, "file://")

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return scanFile(ctx, path, fn)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || hiddenFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)

	for _, f := range files {
		if err := scanFile(ctx, f, fn); err != nil {
			return err
		}
	}

	return nil
}

func scanFile(ctx context.Context, path string, fn func(Triple) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Decode(ctx, f, path, fn)
}

// hiddenFile matches the files Hive skips inside a table location, like
// _SUCCESS markers and .crc sidecars.
func hiddenFile(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
