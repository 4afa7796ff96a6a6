package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileBackend stores each snapshot as a JSON file in a directory.
// Writes go to a temporary file that is renamed over the target.
type FileBackend struct {
	dir string
}

// OpenFile returns a FileBackend rooted at dir, creating it if needed.
func OpenFile(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Get reads the snapshot stored under key.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to read snapshot %s", key)
	}
	return data, nil
}

// Put atomically replaces the snapshot stored under key.
func (f *FileBackend) Put(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for snapshot %s", key)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write snapshot %s", key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync snapshot %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close snapshot %s", key)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to replace snapshot %s", key)
	}
	return nil
}

// Delete removes the snapshot stored under key.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to delete snapshot %s", key)
	}
	return nil
}

// Close is a no-op.
func (f *FileBackend) Close() error {
	return nil
}
