// Package atomicfile provides crash-safe file writing using temporary files
// that are renamed or linked into place.

package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces path with data. The data is written to a
// synced temp file in the same directory, which is then renamed over path.
func Write(path string, data []byte, perm os.FileMode) error {
	tmpName, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Create atomically creates path with data, failing with an error matching
// [fs.ErrExist] when path already exists. A reader never observes a partial
// file: the complete temp file is hard-linked to path and then removed.
//
// [fs.ErrExist]: https://pkg.go.dev/io/fs#ErrExist
func Create(path string, data []byte, perm os.FileMode) error {
	tmpName, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpName)
	if err := os.Link(tmpName, path); err != nil {
		return fmt.Errorf("link temp file: %w", err)
	}
	return nil
}

// writeTemp writes data to a synced temp file next to path with mode perm
// and returns its name. The temp file is removed if any step fails.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	success = true
	return tmpName, nil
}
