package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// The staging area is the engine's working directory seen as a byte store
// keyed by logical names. The transcode stage is its only mutator.

// Path maps a logical staging name to its location on disk. Names are
// flattened to their base so callers cannot escape the staging directory.
func (e *Engine) Path(name string) string {
	return filepath.Join(e.dir, filepath.Base(name))
}

// WriteFile stages a blob under a logical name.
func (e *Engine) WriteFile(name string, data []byte) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(e.Path(name), data, 0o644)
}

// ReadFile reads back a staged blob.
func (e *Engine) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(e.Path(name))
}

// RemoveFile deletes a staged blob. A missing file is not an error; the
// caller is clearing leftovers from a prior attempt and cannot assume any
// are present.
func (e *Engine) RemoveFile(name string) error {
	err := os.Remove(e.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
