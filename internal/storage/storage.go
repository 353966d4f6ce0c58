package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = errors.New("storage: key not found")

// ErrCorrupt is returned by Get when the stored value could not be read back
// intact. Callers treat it like an empty value.
var ErrCorrupt = errors.New("storage: corrupt value")

// Storage is a keyed blob store. Every Put replaces the whole value for its
// key; concurrent writers from other processes follow last-writer-wins.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend named by driver rooted at dir.
func Open(driver, dir string) (Storage, error) {
	switch driver {
	case "", "file":
		return NewFileStorage(dir)
	case "sqlite":
		return NewSQLiteStorage(dir)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", driver)
	}
}
