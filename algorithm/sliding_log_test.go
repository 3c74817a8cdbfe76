package algorithm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/internal/clock"
)

func TestSlidingLog_WindowSlides(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := newTestMemory(mock)
	l := NewSlidingLog(mock)
	quota := ratelimit.PerMinute(2)

	d, err := l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mock.Advance(30 * time.Second)
	d, err = l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "both slots consumed within the rolling minute")

	mock.Advance(31 * time.Second)
	d, err = l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "first request's timestamp has fallen out of the rolling window")
}

func TestSlidingLog_AdjustCostRefundDropsOldest(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := newTestMemory(mock)
	l := NewSlidingLog(mock)
	quota := ratelimit.PerMinute(1)

	_, err := l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)

	d, err := l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, l.AdjustCost(ctx, s, "k", quota, 1))

	d, err = l.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
