package algorithm

import (
	"context"
	"math"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/storage"
)

// LeakyBucket enforces a strict constant rate: the fill level rises by
// one per admitted request and leaks at the quota's refill rate.
//
// Admission uses the non-strict inequality level+1 <= max_level (the
// burst-th request is admitted when level is exactly max_level-1) —
// see DESIGN.md Open Question 1.
type LeakyBucket struct {
	clock Clock
}

// NewLeakyBucket constructs a Leaky Bucket algorithm.
func NewLeakyBucket(c Clock) *LeakyBucket { return &LeakyBucket{clock: defaultClock(c)} }

func (l *LeakyBucket) Name() string { return "leaky_bucket" }

func leakyBucketTTL(quota ratelimit.Quota) time.Duration {
	secs := 2 * float64(quota.EffectiveBurst()) / quota.EffectiveRefillRate()
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs * float64(time.Second))
}

func (l *LeakyBucket) decide(quota ratelimit.Quota, current *storage.Entry, now time.Time) (ratelimit.Decision, float64) {
	maxLevel := float64(quota.EffectiveBurst())
	rate := quota.EffectiveRefillRate()

	level := 0.0
	last := now.UnixMilli()
	if current != nil && current.Tokens != nil {
		level = *current.Tokens
		last = current.LastUpdate
	}

	nowMs := now.UnixMilli()
	if nowMs > last {
		elapsedSec := float64(nowMs-last) / 1000.0
		level = math.Max(0, level-elapsedSec*rate)
	}

	if level+1 <= maxLevel {
		level++
		remaining := uint64(math.Floor(maxLevel - level))
		resetAt := now.Add(time.Duration(level / rate * float64(time.Second)))
		info := ratelimit.NewRateLimitInfo(quota.MaxRequests(), remaining, resetAt, now).WithAlgorithm("leaky_bucket")
		return ratelimit.Allow(info), level
	}

	retryAfter := time.Duration((level + 1 - maxLevel) / rate * float64(time.Second))
	resetAt := now.Add(time.Duration(level / rate * float64(time.Second)))
	info := ratelimit.NewRateLimitInfo(quota.MaxRequests(), 0, resetAt, now).
		WithAlgorithm("leaky_bucket").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), level
}

// CheckAndRecord implements Algorithm.
func (l *LeakyBucket) CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	now := l.clock.Now()

	_, err := s.ExecuteAtomic(ctx, key, leakyBucketTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		d, level := l.decide(quota, current, now)
		decision = d
		return &storage.Entry{Tokens: &level, LastUpdate: now.UnixMilli()}, nil
	})
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return decision, nil
}

// Check implements Algorithm (read-only preview).
func (l *LeakyBucket) Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	d, _ := l.decide(quota, entry, l.clock.Now())
	return d, nil
}

// Reset implements Algorithm.
func (l *LeakyBucket) Reset(ctx context.Context, s storage.Storage, key string) error {
	return s.Delete(ctx, key)
}

// AdjustCost changes the fill level by -delta (a positive refund lowers
// the level, a negative charge raises it), clamped to [0, max_level].
func (l *LeakyBucket) AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error {
	now := l.clock.Now()
	maxLevel := float64(quota.EffectiveBurst())

	_, err := s.ExecuteAtomic(ctx, key, leakyBucketTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		level := 0.0
		if current != nil && current.Tokens != nil {
			level = *current.Tokens
		}
		level = clampFloat64(level-float64(delta), 0, maxLevel)
		return &storage.Entry{Tokens: &level, LastUpdate: now.UnixMilli()}, nil
	})
	return err
}
