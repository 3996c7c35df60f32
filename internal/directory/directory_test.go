package directory

import (
	"context"
	"path/filepath"
	"testing"

	logx "castbot/pkg/logx"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, d Directory) {
	t.Helper()
	ctx := context.Background()

	ids, err := d.List(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	for _, id := range []int64{30, -100200300, 10} {
		added, err := d.Add(ctx, id)
		require.NoError(t, err)
		require.True(t, added)
	}
	added, err := d.Add(ctx, 10)
	require.NoError(t, err)
	require.False(t, added, "second add is a no-op")

	ids, err = d.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{-100200300, 10, 30}, ids)

	require.NoError(t, d.Remove(ctx, 30))
	require.NoError(t, d.Remove(ctx, 999))
	ids, err = d.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{-100200300, 10}, ids)
}

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()
	d, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	defer d.Close()
	exercise(t, d)
}

func TestFileDirectoryPersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "recipients.json")
	d, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	exercise(t, d)
	require.NoError(t, d.Close())

	d2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	ids, err := d2.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{-100200300, 10}, ids)
}

func TestSQLiteDirectoryPersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "castbot.db")
	d, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	exercise(t, d)
	require.NoError(t, d.Close())

	d2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer d2.Close()
	ids, err := d2.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{-100200300, 10}, ids)
}

func TestRedisDirectory(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	d, err := Open(Config{Driver: "redis", RedisAddr: mr.Addr(), KeyPrefix: "test:rcpt:"}, logx.Nop())
	require.NoError(t, err)
	defer d.Close()
	exercise(t, d)

	require.NoError(t, mr.Set("test:rcpt:not-a-number", "x"))
	require.NoError(t, mr.Set("other:key", "x"))
	ids, err := d.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{-100200300, 10}, ids)
}

func TestRedisDirectoryUnavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	d, err := Open(Config{Driver: "redis", RedisAddr: mr.Addr()}, logx.Nop())
	require.NoError(t, err)
	defer d.Close()

	mr.Close()
	_, err = d.List(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}
