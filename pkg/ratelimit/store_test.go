package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	store   Store
	clock   *fakeClock
	advance func(time.Duration)
}

func newMemoryFixture(t *testing.T) storeFixture {
	t.Helper()
	clock := newFakeClock()
	return storeFixture{store: NewMemoryStore(), clock: clock, advance: clock.Advance}
}

func newRedisFixture(t *testing.T) storeFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := newFakeClock()
	return storeFixture{
		store: NewRedisStore(client, "test:"),
		clock: clock,
		advance: func(d time.Duration) {
			clock.Advance(d)
			mr.FastForward(d)
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, f storeFixture)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryFixture(t)) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisFixture(t)) })
}

func TestStoreTake(t *testing.T) {
	ctx := context.Background()

	forEachStore(t, func(t *testing.T, f storeFixture) {
		t.Run("counts up to max then denies without incrementing", func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				e, ok, err := f.store.Take(ctx, "a", 3, time.Second, f.clock.Now())
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, i, e.Count)
			}
			for i := 0; i < 2; i++ {
				e, ok, err := f.store.Take(ctx, "a", 3, time.Second, f.clock.Now())
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Equal(t, 3, e.Count)
			}
		})

		t.Run("new window after expiry", func(t *testing.T) {
			f.advance(1100 * time.Millisecond)
			e, ok, err := f.store.Take(ctx, "a", 3, time.Second, f.clock.Now())
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, e.Count)
			assert.Equal(t, f.clock.Now().Add(time.Second), e.ResetAt)
		})

		t.Run("keys are independent", func(t *testing.T) {
			e, ok, err := f.store.Take(ctx, "b", 3, time.Second, f.clock.Now())
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 1, e.Count)
		})
	})
}

func TestStoreSuspicionAndBlocking(t *testing.T) {
	ctx := context.Background()

	forEachStore(t, func(t *testing.T, f storeFixture) {
		for i := 1; i <= 3; i++ {
			n, err := f.store.RecordSuspicion(ctx, "9.9.9.9", f.clock.Now(), time.Hour)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}

		f.advance(time.Hour + time.Second)
		n, err := f.store.RecordSuspicion(ctx, "9.9.9.9", f.clock.Now(), time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "idle counter restarts")

		require.NoError(t, f.store.Block(ctx, "9.9.9.9"))
		require.NoError(t, f.store.Block(ctx, "1.1.1.1"))
		blocked, err := f.store.IsBlocked(ctx, "9.9.9.9")
		require.NoError(t, err)
		assert.True(t, blocked)

		list, err := f.store.Blocked(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"1.1.1.1", "9.9.9.9"}, list)

		require.NoError(t, f.store.Unblock(ctx, "9.9.9.9"))
		blocked, err = f.store.IsBlocked(ctx, "9.9.9.9")
		require.NoError(t, err)
		assert.False(t, blocked)

		n, err = f.store.RecordSuspicion(ctx, "9.9.9.9", f.clock.Now(), time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "unblock clears the suspicion counter")

		require.NoError(t, f.store.Ping(ctx))
	})
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	_, _, _ = s.Take(ctx, "short", 5, time.Second, now)
	_, _, _ = s.Take(ctx, "long", 5, time.Hour, now)
	_, _ = s.RecordSuspicion(ctx, "1.2.3.4", now, time.Minute)
	require.Equal(t, 2, s.Len())

	removed, err := s.Sweep(ctx, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())

	_, err = s.Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	n, _ := s.RecordSuspicion(ctx, "1.2.3.4", now.Add(2*time.Minute), time.Minute)
	assert.Equal(t, 1, n)
}

func TestRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStoreFromURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Ping(context.Background()))

	_, err = NewRedisStoreFromURL("://bad")
	require.Error(t, err)
}

func TestRedisStoreSweepIsNoop(t *testing.T) {
	f := newRedisFixture(t)
	removed, err := f.store.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
