package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the behaviour every backend must share.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", `["a","b"]`))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `["a","b"]`, v)

	require.NoError(t, s.Set(ctx, "k", "overwritten"))
	v, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "overwritten", v)

	require.NoError(t, s.Remove(ctx, "k"))
	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Removing an absent key is fine
	require.NoError(t, s.Remove(ctx, "k"))

	assert.ErrorIs(t, s.Set(ctx, "", "x"), ErrInvalidKey)

	require.NoError(t, s.Close())
	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", "v"), ErrClosed)
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemory())
}

func TestFileStorage(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "nested", "state.json"))
	require.NoError(t, err)
	exerciseStorage(t, f)
}

func TestFileStoragePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "read", `["t1"]`))
	require.NoError(t, f.Close())

	reopened, err := NewFile(path)
	require.NoError(t, err)
	v, found, err := reopened.Get(ctx, "read")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `["t1"]`, v)
}

func TestFileStorageWritesLeaveNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	f, err := NewFile(path)
	require.NoError(t, err)
	for _, v := range []string{`["t1"]`, `["t1","t2"]`, `["t1","t2","t3"]`} {
		require.NoError(t, f.Set(ctx, "read", v))
	}
	require.NoError(t, f.Remove(ctx, "other"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `t3`)
}

func TestFileStorageCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFile(path)
	assert.Error(t, err)
}

func TestBadgerStorage(t *testing.T) {
	b, err := NewBadger("")
	require.NoError(t, err)
	exerciseStorage(t, b)
}

func TestBadgerStoragePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := NewBadger(dir)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "read", `["t1","t2"]`))
	require.NoError(t, b.Close())

	reopened, err := NewBadger(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.Get(ctx, "read")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `["t1","t2"]`, v)
}

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r := NewRedis(&redis.Options{Addr: addr}, "alertfeed-test:")
	require.NoError(t, r.Ping(context.Background()))
	exerciseStorage(t, r)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Backend: "FILE", Path: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}
