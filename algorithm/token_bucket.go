package algorithm

import (
	"context"
	"math"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/storage"
)

// TokenBucket allows bursts up to the quota's effective burst, refilling
// at the quota's effective refill rate.
type TokenBucket struct {
	clock Clock
}

// NewTokenBucket constructs a Token Bucket algorithm.
func NewTokenBucket(c Clock) *TokenBucket { return &TokenBucket{clock: defaultClock(c)} }

func (t *TokenBucket) Name() string { return "token_bucket" }

func tokenBucketTTL(quota ratelimit.Quota) time.Duration {
	secs := 2 * float64(quota.EffectiveBurst()) / quota.EffectiveRefillRate()
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs * float64(time.Second))
}

func (t *TokenBucket) decide(quota ratelimit.Quota, current *storage.Entry, now time.Time) (ratelimit.Decision, float64) {
	burst := float64(quota.EffectiveBurst())
	rate := quota.EffectiveRefillRate()

	tokens := burst
	last := now.UnixMilli()
	if current != nil && current.Tokens != nil {
		tokens = *current.Tokens
		last = current.LastUpdate
	}

	nowMs := now.UnixMilli()
	if nowMs > last {
		elapsedSec := float64(nowMs-last) / 1000.0
		tokens = math.Min(burst, tokens+elapsedSec*rate)
	}

	if tokens >= 1 {
		tokens--
		resetAt := now.Add(time.Duration((burst - tokens) / rate * float64(time.Second)))
		info := ratelimit.NewRateLimitInfo(quota.MaxRequests(), uint64(math.Floor(tokens)), resetAt, now).WithAlgorithm("token_bucket")
		return ratelimit.Allow(info), tokens
	}

	retryAfter := time.Duration((1 - tokens) / rate * float64(time.Second))
	resetAt := now.Add(time.Duration((burst - tokens) / rate * float64(time.Second)))
	info := ratelimit.NewRateLimitInfo(quota.MaxRequests(), 0, resetAt, now).
		WithAlgorithm("token_bucket").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), tokens
}

// CheckAndRecord implements Algorithm.
func (t *TokenBucket) CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	now := t.clock.Now()

	_, err := s.ExecuteAtomic(ctx, key, tokenBucketTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		d, tokens := t.decide(quota, current, now)
		decision = d
		return &storage.Entry{Tokens: &tokens, LastUpdate: now.UnixMilli()}, nil
	})
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return decision, nil
}

// Check implements Algorithm (read-only preview).
func (t *TokenBucket) Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	d, _ := t.decide(quota, entry, t.clock.Now())
	return d, nil
}

// Reset implements Algorithm.
func (t *TokenBucket) Reset(ctx context.Context, s storage.Storage, key string) error {
	return s.Delete(ctx, key)
}

// AdjustCost adds delta tokens directly to the stored level, clamped to
// [0, effective_burst].
func (t *TokenBucket) AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error {
	now := t.clock.Now()
	burst := float64(quota.EffectiveBurst())

	_, err := s.ExecuteAtomic(ctx, key, tokenBucketTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		tokens := burst
		if current != nil && current.Tokens != nil {
			tokens = *current.Tokens
		}
		tokens = clampFloat64(tokens+float64(delta), 0, burst)
		return &storage.Entry{Tokens: &tokens, LastUpdate: now.UnixMilli()}, nil
	})
	return err
}
