package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vipul984/ratelimit/internal/clock"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{Interval: GCManual()})
	defer m.Close()

	require.NoError(t, m.Set(ctx, "k", &Entry{Count: 5}, time.Minute))
	e, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, uint64(5), e.Count)

	require.NoError(t, m.Delete(ctx, "k"))
	e, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemory_GetExpiredTTLReturnsNil(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Now())
	m := NewMemory(MemoryConfig{Clock: mock, Interval: GCManual()})
	defer m.Close()

	require.NoError(t, m.Set(ctx, "k", &Entry{Count: 1}, time.Second))
	mock.Advance(2 * time.Second)

	e, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemory_IncrementAccumulatesWithinWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{Interval: GCManual()})
	defer m.Close()

	n, err := m.Increment(ctx, "k", 1, 1000, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	n, err = m.Increment(ctx, "k", 1, 1000, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	// A new window resets the count and stashes the old one as PrevCount.
	n, err = m.Increment(ctx, "k", 1, 2000, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	e, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, e.PrevCount)
	assert.Equal(t, uint64(2), *e.PrevCount)
}

func TestMemory_ExecuteAtomicSeesPriorValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{Interval: GCManual()})
	defer m.Close()

	op := func(current *Entry) (*Entry, any) {
		count := uint64(0)
		if current != nil {
			count = current.Count
		}
		return &Entry{Count: count + 1}, count + 1
	}

	res, err := m.ExecuteAtomic(ctx, "k", time.Minute, op)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res)

	res, err = m.ExecuteAtomic(ctx, "k", time.Minute, op)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res)
}

func TestMemory_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{Interval: GCManual()})
	defer m.Close()

	ok, err := m.CompareAndSwap(ctx, "k", nil, &Entry{Count: 1}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "absent key matches a nil expected value")

	ok, err = m.CompareAndSwap(ctx, "k", &Entry{Count: 99}, &Entry{Count: 2}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected value must fail the swap")

	ok, err = m.CompareAndSwap(ctx, "k", &Entry{Count: 1}, &Entry{Count: 2}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_SweepEvictsOnlyPastBothTTLAndMaxAge(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Now())
	m := NewMemory(MemoryConfig{Clock: mock, Interval: GCManual(), MaxAge: time.Minute})
	defer m.Close()

	require.NoError(t, m.Set(ctx, "k", &Entry{Count: 1, LastUpdate: mock.Now().UnixMilli()}, time.Second))

	// TTL expired but MaxAge has not: sweep must not evict.
	mock.Advance(2 * time.Second)
	m.RunGC()

	sh := m.shardFor("k")
	sh.mu.Lock()
	_, stillPresent := sh.data["k"]
	sh.mu.Unlock()
	assert.True(t, stillPresent, "entry younger than MaxAge survives a TTL-only expiry")

	mock.Advance(2 * time.Minute)
	m.RunGC()

	sh.mu.Lock()
	_, stillPresent = sh.data["k"]
	sh.mu.Unlock()
	assert.False(t, stillPresent, "entry past both TTL and MaxAge is evicted")
}

func TestMemory_PingAndClose(t *testing.T) {
	m := NewMemory(MemoryConfig{Interval: GCDuration(10 * time.Millisecond)})
	require.NoError(t, m.Ping(context.Background()))
	require.NoError(t, m.Close())
}
