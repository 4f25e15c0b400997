// Package property persists small serialized documents under string keys.
package property

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrKeyEmpty is returned when a property key is blank.
	ErrKeyEmpty = errors.New("property key cannot be empty")
	// ErrDBNil is returned when a backend was constructed without a database handle.
	ErrDBNil = errors.New("database connection is nil")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown property backend")
)

// Bag is a flat key/value store holding one document per key.
// Writes replace the whole value; there is no versioning and no
// transaction spanning more than one key.
type Bag interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Memory is an in-process Bag.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty Memory bag.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

// Get returns the stored value for key.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	if key == "" {
		return "", false, ErrKeyEmpty
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	_ = ctx
	if key == "" {
		return ErrKeyEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Closer is a Bag holding resources that must be released.
type Closer interface {
	Bag
	Close() error
}

type nopCloser struct{ Bag }

func (nopCloser) Close() error { return nil }

// Open constructs the named backend rooted at path.
func Open(backend, path string, logger *slog.Logger) (Closer, error) {
	switch backend {
	case BackendMemory:
		return nopCloser{NewMemory()}, nil
	case BackendSQLite:
		bag, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return bag, nil
	case BackendBadger:
		bag, err := OpenBadger(path, logger)
		if err != nil {
			return nil, err
		}
		return bag, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

var (
	_ Bag = (*Memory)(nil)
	_ Bag = (*SQLite)(nil)
	_ Bag = (*Badger)(nil)
)
