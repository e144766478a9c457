// Package publish is the reference upload backend: it keeps a local copy of
// every photo and publishes composites to public storage.
package publish

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBadFilename is returned for names that would escape the store.
var ErrBadFilename = errors.New("invalid photo filename")

// LocalStore keeps photos in a flat directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes data under name and returns the file path. The write goes to
// a temporary file first so readers never see a partial photo.
func (s *LocalStore) Save(name string, data []byte) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, clean)

	tmp, err := os.CreateTemp(s.dir, "."+clean+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	tmp.Close()

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move file to final location: %w", err)
	}
	return path, nil
}

func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrBadFilename, name)
	}
	return base, nil
}
