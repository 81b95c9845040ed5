package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedis_AcquireIsExclusive(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	a := NewRedis(client)
	b := NewRedis(client)

	ok, err := a.Acquire(ctx, "q1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx, "q1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = b.Acquire(ctx, "q2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedis_ReleaseOnlyByOwner(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a := NewRedis(client)
	b := NewRedis(client)

	ok, err := a.Acquire(ctx, "q", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Release(ctx, "q"))
	require.True(t, mr.Exists(keyPrefix+"q"))

	require.NoError(t, a.Release(ctx, "q"))
	require.False(t, mr.Exists(keyPrefix+"q"))

	ok, err = b.Acquire(ctx, "q", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedis_LockExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	a := NewRedis(client)

	ok, err := a.Acquire(ctx, "q", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = NewRedis(client).Acquire(ctx, "q", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := Dial(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer l.Close()

	_, err = Dial(context.Background(), "not a url")
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	ok, err := Noop{}.Acquire(context.Background(), "x", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, Noop{}.Release(context.Background(), "x"))
}
