package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileStorage keeps one JSON file per key under a directory.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates the directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the value for key. Unparseable content is moved aside to a
// .backup file and reported as ErrCorrupt.
func (s *FileStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read storage file")
	}

	if len(bytes.TrimSpace(data)) == 0 || !json.Valid(data) {
		os.Rename(p, p+".backup")
		return nil, ErrCorrupt
	}

	return data, nil
}

// Put writes to a temp file and renames it over the old one.
func (s *FileStorage) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	tempPath := p + ".tmp"
	if err := os.WriteFile(tempPath, value, 0600); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}

	if err := os.Rename(tempPath, p); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}

	return nil
}

// Delete removes the file for key. Deleting a missing key is not an error.
func (s *FileStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete storage file")
	}
	return nil
}

func (s *FileStorage) Close() error { return nil }
