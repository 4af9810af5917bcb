package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryGuard_AcceptsOncePerWindow(t *testing.T) {
	clock := newClock()
	g := NewMemoryGuard(WithClock(clock.Now))
	ctx := context.Background()

	ok, err := g.Accept(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, ok, "first delivery should be accepted")

	for i := 0; i < 3; i++ {
		clock.Advance(5 * time.Second)
		ok, _ = g.Accept(ctx, "msg-1")
		assert.False(t, ok, "repeat %d inside the window should be rejected", i)
	}

	clock.Advance(20 * time.Second)
	ok, _ = g.Accept(ctx, "msg-1")
	assert.True(t, ok, "key should be accepted again after the window elapses")
}

func TestMemoryGuard_RepeatDoesNotExtendWindow(t *testing.T) {
	clock := newClock()
	g := NewMemoryGuard(WithClock(clock.Now), WithRetention(10*time.Second))
	ctx := context.Background()

	ok, _ := g.Accept(ctx, "k")
	require.True(t, ok)
	clock.Advance(9 * time.Second)
	ok, _ = g.Accept(ctx, "k")
	require.False(t, ok)
	clock.Advance(2 * time.Second)
	ok, _ = g.Accept(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryGuard_EmptyKeyRejected(t *testing.T) {
	g := NewMemoryGuard()
	ok, err := g.Accept(context.Background(), "  ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, g.Len())
}

func TestMemoryGuard_SweepPurgesExpired(t *testing.T) {
	clock := newClock()
	g := NewMemoryGuard(WithClock(clock.Now))
	ctx := context.Background()

	_, _ = g.Accept(ctx, "old")
	clock.Advance(25 * time.Second)
	_, _ = g.Accept(ctx, "fresh")
	clock.Advance(10 * time.Second)

	assert.Equal(t, 1, g.Sweep())
	assert.Equal(t, 1, g.Len())

	ok, _ := g.Accept(ctx, "fresh")
	assert.False(t, ok, "fresh key is still inside its window")
}

func TestMemoryGuard_ConcurrentDeliveriesPassOnce(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.Accept(ctx, "same-event"); ok {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted)
}

func TestMemoryGuard_RunStopsOnCancel(t *testing.T) {
	g := NewMemoryGuard(WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisGuard_AcceptsOncePerWindow(t *testing.T) {
	client, mr := setupTestRedis(t)
	g := NewRedisGuard(client, 30*time.Second)
	ctx := context.Background()

	ok, err := g.Accept(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Accept(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(31 * time.Second)
	ok, err = g.Accept(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuard_ReportsBackendError(t *testing.T) {
	client, mr := setupTestRedis(t)
	g := NewRedisGuard(client, time.Second)
	mr.Close()

	_, err := g.Accept(context.Background(), "k")
	assert.Error(t, err)
}
