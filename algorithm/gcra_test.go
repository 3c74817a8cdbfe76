package algorithm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/internal/clock"
	"github.com/Vipul984/ratelimit/storage"
)

func newTestMemory(c clock.Clock) *storage.Memory {
	return storage.NewMemory(storage.MemoryConfig{Clock: c, Interval: storage.GCManual()})
}

func TestGCRA_BurstThenDeny(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := newTestMemory(mock)
	g := NewGCRA(mock)
	quota := ratelimit.PerSecond(1).WithBurst(3)

	for i := 0; i < 3; i++ {
		d, err := g.CheckAndRecord(ctx, s, "user:1", quota)
		require.NoError(t, err)
		assert.Truef(t, d.Allowed, "request %d should be allowed within burst", i)
	}

	d, err := g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Info.RetryAfter)
}

func TestGCRA_RecoversAfterWaiting(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := newTestMemory(mock)
	g := NewGCRA(mock)
	quota := ratelimit.PerSecond(1).WithBurst(1)

	d, err := g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	mock.Advance(time.Second)
	d, err = g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGCRA_ResetClearsState(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Now())
	s := newTestMemory(mock)
	g := NewGCRA(mock)
	quota := ratelimit.PerSecond(1).WithBurst(1)

	_, err := g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	d, err := g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, g.Reset(ctx, s, "user:1"))

	d, err = g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGCRA_AdjustCostRefundAllowsExtraRequest(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Now())
	s := newTestMemory(mock)
	g := NewGCRA(mock)
	quota := ratelimit.PerSecond(1).WithBurst(1)

	_, err := g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)

	d, err := g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, g.AdjustCost(ctx, s, "user:1", quota, 1))

	d, err = g.CheckAndRecord(ctx, s, "user:1", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
