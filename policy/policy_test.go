package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/algorithm"
	"github.com/Vipul984/ratelimit/internal/clock"
	"github.com/Vipul984/ratelimit/storage"
)

func sampleDecision() ratelimit.Decision {
	return ratelimit.Allow(ratelimit.NewRateLimitInfo(100, 99, time.Now(), time.Now()))
}

func TestDefaultPolicy_NoAdjustment(t *testing.T) {
	p := NewDefaultPolicy()
	quota := ratelimit.PerMinute(100)
	assert.Equal(t, uint64(1), p.TokenCost(quota))
	assert.Equal(t, "default", p.Name())
	assert.Equal(t, int64(0), p.OnResponse(200, sampleDecision()))
}

func TestPenaltyPolicy_ChargesOnErrors(t *testing.T) {
	p := NewPenaltyPolicy(3)
	d := sampleDecision()

	assert.Equal(t, int64(0), p.OnResponse(200, d))
	assert.Equal(t, int64(-2), p.OnResponse(404, d))
	assert.Equal(t, int64(-2), p.OnResponse(500, d))
}

func TestCreditPolicy_RefundsCacheableResponses(t *testing.T) {
	p := NewCreditPolicy().WithNoContent()
	d := sampleDecision()

	assert.Equal(t, int64(1), p.OnResponse(304, d))
	assert.Equal(t, int64(1), p.OnResponse(204, d))
	assert.Equal(t, int64(0), p.OnResponse(200, d))
}

func TestCompositePolicy_SumsOnResponseAndMaxesTokenCost(t *testing.T) {
	p := NewCompositePolicy().With(NewPenaltyPolicy(2)).With(NewCreditPolicy())
	d := sampleDecision()

	assert.Equal(t, int64(-1), p.OnResponse(404, d), "penalty -1 from a 2x multiplier, credit contributes 0")
	assert.Equal(t, int64(1), p.OnResponse(304, d), "credit +1, penalty contributes 0")
	assert.Equal(t, uint64(1), p.TokenCost(ratelimit.PerMinute(100)))
}

func TestApply_NoOpWhenDeltaIsZero(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Now())
	store := storage.NewMemory(storage.MemoryConfig{Clock: mock, Interval: storage.GCManual()})
	defer store.Close()
	algo := algorithm.NewGCRA(mock)
	quota := ratelimit.PerSecond(1)

	require.NoError(t, Apply(ctx, store, algo, "k", quota, 200, sampleDecision(), NewDefaultPolicy()))

	entry, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry, "no adjustment call should mean no storage write at all")
}

func TestApply_PenaltyChargesExtraCost(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMockAt(time.Now())
	store := storage.NewMemory(storage.MemoryConfig{Clock: mock, Interval: storage.GCManual()})
	defer store.Close()
	algo := algorithm.NewGCRA(mock)
	quota := ratelimit.PerSecond(1).WithBurst(2)

	d, err := algo.CheckAndRecord(ctx, store, "k", quota)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	require.NoError(t, Apply(ctx, store, algo, "k", quota, 404, d, NewPenaltyPolicy(2)))

	d, err = algo.CheckAndRecord(ctx, store, "k", quota)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "penalty consumed the remaining burst slot")
}
