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

func TestLeakyBucket_FillsThenDrains(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := newTestMemory(mock)
	lb := NewLeakyBucket(mock)
	quota := ratelimit.PerSecond(1).WithBurst(2)

	for i := 0; i < 2; i++ {
		d, err := lb.CheckAndRecord(ctx, s, "k", quota)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := lb.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	mock.Advance(time.Second)
	d, err = lb.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

// TestLeakyBucket_NonStrictAdmission pins Open Question 1: the burst-th
// request is admitted when level is exactly max_level-1 (level+1 <=
// max_level, not level+1 < max_level).
func TestLeakyBucket_NonStrictAdmission(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := newTestMemory(mock)
	lb := NewLeakyBucket(mock)
	quota := ratelimit.PerSecond(1).WithBurst(1)

	d, err := lb.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "first request must be admitted: level 0 + 1 <= max_level 1")

	d, err = lb.CheckAndRecord(ctx, s, "k", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "second request must be denied: level 1 + 1 > max_level 1")
}
