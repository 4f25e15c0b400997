package property

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Bag {
	t.Helper()

	sqliteBag, err := OpenSQLite(":memory:")
	require.NoError(t, err, "failed to open sqlite bag")
	t.Cleanup(func() { _ = sqliteBag.Close() })

	badgerBag, err := OpenBadger(t.TempDir(), nil)
	require.NoError(t, err, "failed to open badger bag")
	t.Cleanup(func() { _ = badgerBag.Close() })

	return map[string]Bag{
		"memory": NewMemory(),
		"sqlite": sqliteBag,
		"badger": badgerBag,
		"shared": NewSharedBadger(t.TempDir(), nil),
	}
}

func TestBagGetSet(t *testing.T) {
	ctx := context.Background()
	for name, bag := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := bag.Get(ctx, "rules")
			require.NoError(t, err)
			assert.False(t, ok, "absent key must report ok=false")

			require.NoError(t, bag.Set(ctx, "rules", `[{"id":1}]`))
			got, ok, err := bag.Get(ctx, "rules")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[{"id":1}]`, got)

			require.NoError(t, bag.Set(ctx, "rules", `[]`))
			got, _, err = bag.Get(ctx, "rules")
			require.NoError(t, err)
			assert.Equal(t, `[]`, got, "last write wins")

			require.NoError(t, bag.Set(ctx, "settings", `{}`))
			got, _, err = bag.Get(ctx, "rules")
			require.NoError(t, err)
			assert.Equal(t, `[]`, got, "keys are independent")
		})
	}
}

func TestBagEmptyKey(t *testing.T) {
	ctx := context.Background()
	for name, bag := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := bag.Get(ctx, "")
			assert.ErrorIs(t, err, ErrKeyEmpty)
			assert.ErrorIs(t, bag.Set(ctx, "", "x"), ErrKeyEmpty)
		})
	}
}

func TestNewSQLiteNilDB(t *testing.T) {
	_, err := NewSQLite(nil)
	assert.ErrorIs(t, err, ErrDBNil)
}

func TestOpen(t *testing.T) {
	testCases := []struct {
		name    string
		backend string
		path    string
		wantErr error
	}{
		{name: "memory", backend: BackendMemory},
		{name: "sqlite", backend: BackendSQLite, path: ":memory:"},
		{name: "badger", backend: BackendBadger, path: t.TempDir()},
		{name: "unknown", backend: "etcd", wantErr: ErrUnknownBackend},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bag, err := Open(tc.backend, tc.path, nil)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, bag.Set(context.Background(), "k", "v"))
			require.NoError(t, bag.Close())
		})
	}
}

func TestOpenSQLiteCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "mailrules", "mailrules.db")

	bag, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, bag.Set(context.Background(), "rules", "[]"))
	require.NoError(t, bag.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file is created")
}

func TestSharedBadgerLeavesDirectoryUnlocked(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	shared, err := OpenShared(BackendBadger, dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shared.Close() })
	require.NoError(t, shared.Set(ctx, "settings", `{"autoApply":false}`))

	// a second process writing while the daemon keeps its bag open
	other, err := OpenBadger(dir, nil)
	require.NoError(t, err, "directory must not stay locked between calls")
	require.NoError(t, other.Set(ctx, "settings", `{"autoApply":true}`))
	require.NoError(t, other.Close())

	got, ok, err := shared.Get(ctx, "settings")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"autoApply":true}`, got)
}

func TestOpenSharedOtherBackends(t *testing.T) {
	bag, err := OpenShared(BackendSQLite, ":memory:", nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, bag)
	require.NoError(t, bag.Close())

	bag, err = OpenShared(BackendBadger, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &Badger{}, bag, "in-memory badger has no lock to release")
	require.NoError(t, bag.Close())
}

func TestBadgerLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := badgerLogger{slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))}

	l.Infof("replaying %s", "value log")
	l.Debugf("compaction %d", 1)
	assert.Empty(t, buf.String(), "badger chatter stays below info")

	l.Warningf("slow %s", "write")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "component=badger")
}
