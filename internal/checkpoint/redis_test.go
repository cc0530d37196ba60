package checkpoint

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	r := NewRedis(client, "vra:backfill")
	r.now = func() time.Time { return day0.Add(48 * time.Hour) }
	return r, mr
}

func TestRedisStore_MarkDone(t *testing.T) {
	r, _ := newRedisStore(t)

	st, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Windows)

	require.NoError(t, r.MarkDone(ctx, day0.Add(24*time.Hour), day0.Add(48*time.Hour), "run-2"))
	require.NoError(t, r.MarkDone(ctx, day0, day0.Add(24*time.Hour), "run-1"))
	require.NoError(t, r.MarkDone(ctx, day0, day0.Add(24*time.Hour), "run-3"), "first completion wins")

	st, err = r.Load(ctx)
	require.NoError(t, err)
	require.Len(t, st.Windows, 2)
	assert.Equal(t, "run-1", st.Windows[0].RunID, "sorted by window start")
	assert.True(t, st.Done(day0, day0.Add(24*time.Hour)))
	assert.True(t, st.Windows[1].CompletedAt.Equal(day0.Add(48*time.Hour)))
	assert.Equal(t, "redis://"+r.client.Options().Addr+"/vra:backfill", r.Location())
}

func TestRedisStore_Lock(t *testing.T) {
	r, mr := newRedisStore(t)

	unlock, err := r.Lock(ctx)
	require.NoError(t, err)
	_, err = r.Lock(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock())
	assert.False(t, mr.Exists("vra:backfill:lock"))

	unlock, err = r.Lock(ctx)
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestRedisStore_CrashedHolderExpires(t *testing.T) {
	r, mr := newRedisStore(t)

	// another host took the lock and died without releasing it
	require.NoError(t, mr.Set("vra:backfill:lock", "other-host"))
	mr.SetTTL("vra:backfill:lock", DefaultLockTTL)

	_, err := r.Lock(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	mr.FastForward(DefaultLockTTL + time.Second)
	unlock, err := r.Lock(ctx)
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestRedisStore_UnlockKeepsForeignLock(t *testing.T) {
	r, mr := newRedisStore(t)

	unlock, err := r.Lock(ctx)
	require.NoError(t, err)
	// our lock expired and another run took it over
	require.NoError(t, mr.Set("vra:backfill:lock", "other-host"))

	require.NoError(t, unlock())
	got, err := mr.Get("vra:backfill:lock")
	require.NoError(t, err)
	assert.Equal(t, "other-host", got)
}
