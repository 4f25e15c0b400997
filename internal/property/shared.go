package property

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	sharedOpenAttempts = 5
	sharedOpenBackoff  = 100 * time.Millisecond
)

// SharedBadger opens the badger directory for each call and closes it again,
// so the directory lock is free between calls and other processes can write.
type SharedBadger struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSharedBadger returns a bag over the badger directory dir.
func NewSharedBadger(dir string, logger *slog.Logger) *SharedBadger {
	return &SharedBadger{dir: dir, logger: logger}
}

// Get opens the directory, reads key and closes it.
func (s *SharedBadger) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.with(ctx, func(b *Badger) error {
		value, ok, err = b.Get(ctx, key)
		return err
	})
	return value, ok, err
}

// Set opens the directory, writes key and closes it.
func (s *SharedBadger) Set(ctx context.Context, key, value string) error {
	return s.with(ctx, func(b *Badger) error {
		return b.Set(ctx, key, value)
	})
}

// Close is a no-op; nothing is held between calls.
func (s *SharedBadger) Close() error { return nil }

func (s *SharedBadger) with(ctx context.Context, fn func(*Badger) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var b *Badger
	for attempt := 1; ; attempt++ {
		b, err = OpenBadger(s.dir, s.logger)
		if err == nil {
			break
		}
		// another process may hold the lock for the length of one command
		if attempt == sharedOpenAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sharedOpenBackoff * time.Duration(attempt)):
		}
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close badger %s: %w", s.dir, cerr)
		}
	}()
	return fn(b)
}

// OpenShared is Open for long-running processes: a badger directory is
// opened per call instead of being locked for the life of the process. Other
// backends already tolerate concurrent writers and are opened as usual.
func OpenShared(backend, path string, logger *slog.Logger) (Closer, error) {
	if backend == BackendBadger && path != "" {
		return NewSharedBadger(path, logger), nil
	}
	return Open(backend, path, logger)
}

var _ Closer = (*SharedBadger)(nil)
