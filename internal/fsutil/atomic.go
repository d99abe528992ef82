// Package fsutil holds small filesystem helpers shared by the config, store
// and backup packages.
package fsutil

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path by writing a temp file in the same
// directory and renaming it over the target. The result has 0600 perms and
// the parent directory is created with 0700 if needed. pattern is the
// os.CreateTemp pattern of the temp file.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
