// Package atomicfile provides durable, crash-safe writes for the cache,
// idempotency, and catalog stores (spec.md §4.3, §4.4, §4.9). Every store
// writes to a temp file in the target directory and renames it into place so
// readers never observe a partial write.
package atomicfile

import (
	"os"
	"path/filepath"
)

// Write atomically replaces path's contents with data. The temp file is
// created alongside path so the final rename stays within one filesystem.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Read reads path, returning os.ErrNotExist untouched when absent so callers
// can treat a missing store file as "empty".
func Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}
