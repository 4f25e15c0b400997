package property

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
)

const badgerGCInterval = 5 * time.Minute

// Badger is a Bag backed by a badger directory.
type Badger struct {
	db       *badger.DB
	gcExitCh chan struct{}
	wg       sync.WaitGroup
}

// OpenBadger opens the badger database in dir. A nil logger silences badger.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	}
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	b := &Badger{db: db, gcExitCh: make(chan struct{})}
	b.wg.Add(1)
	go b.collectGarbage()
	return b, nil
}

func (b *Badger) collectGarbage() {
	defer b.wg.Done()
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for b.db.RunValueLogGC(0.5) == nil {
			}
		case <-b.gcExitCh:
			return
		}
	}
}

// Get returns the stored value for key.
func (b *Badger) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, ErrKeyEmpty
	}
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get property %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set stores value under key.
func (b *Badger) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrKeyEmpty
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set property %q: %w", key, err)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (b *Badger) Close() error {
	close(b.gcExitCh)
	b.wg.Wait()
	return b.db.Close()
}

// badgerLogger routes badger output through slog.
type badgerLogger struct{ log *slog.Logger }

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
