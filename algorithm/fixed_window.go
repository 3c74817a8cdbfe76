package algorithm

import (
	"context"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/storage"
)

// FixedWindow divides time into fixed, non-overlapping intervals and
// counts requests per interval via storage.Storage.Increment.
type FixedWindow struct {
	clock Clock
}

// NewFixedWindow constructs a Fixed Window algorithm.
func NewFixedWindow(c Clock) *FixedWindow { return &FixedWindow{clock: defaultClock(c)} }

func (f *FixedWindow) Name() string { return "fixed_window" }

func fixedWindowTTL(quota ratelimit.Quota) time.Duration { return 2 * quota.Window() }

// CheckAndRecord implements Algorithm using the Increment primitive —
// the one algorithm whose record path is not an ExecuteAtomic call, per
// spec §4.3.6.
func (f *FixedWindow) CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	now := f.clock.Now()
	bStart := bucketStart(now, quota.Window())

	newCount, err := s.Increment(ctx, key, 1, bStart, fixedWindowTTL(quota))
	if err != nil {
		return ratelimit.Decision{}, err
	}

	maxReq := quota.MaxRequests()
	resetAt := time.UnixMilli(bStart).Add(quota.Window())

	if newCount <= maxReq {
		info := ratelimit.NewRateLimitInfo(maxReq, maxReq-newCount, resetAt, time.UnixMilli(bStart)).WithAlgorithm("fixed_window")
		return ratelimit.Allow(info), nil
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	info := ratelimit.NewRateLimitInfo(maxReq, 0, resetAt, time.UnixMilli(bStart)).
		WithAlgorithm("fixed_window").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), nil
}

// Check implements Algorithm (read-only preview, no increment).
func (f *FixedWindow) Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	now := f.clock.Now()
	bStart := bucketStart(now, quota.Window())
	maxReq := quota.MaxRequests()
	resetAt := time.UnixMilli(bStart).Add(quota.Window())

	entry, err := s.Get(ctx, key)
	if err != nil {
		return ratelimit.Decision{}, err
	}

	var count uint64
	if entry != nil && entry.WindowStart == bStart {
		count = entry.Count
	}

	if count < maxReq {
		info := ratelimit.NewRateLimitInfo(maxReq, maxReq-count, resetAt, time.UnixMilli(bStart)).WithAlgorithm("fixed_window")
		return ratelimit.Allow(info), nil
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	info := ratelimit.NewRateLimitInfo(maxReq, 0, resetAt, time.UnixMilli(bStart)).
		WithAlgorithm("fixed_window").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), nil
}

// Reset implements Algorithm.
func (f *FixedWindow) Reset(ctx context.Context, s storage.Storage, key string) error {
	return s.Delete(ctx, key)
}

// AdjustCost applies delta to the current window bucket's count: a
// negative delta (extra charge) increments count by |delta|; a positive
// delta (refund) decrements count by delta, floored at 0. Unlike
// CheckAndRecord, this goes through ExecuteAtomic rather than Increment
// since it is not a plain additive counter operation.
func (f *FixedWindow) AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error {
	now := f.clock.Now()
	bStart := bucketStart(now, quota.Window())

	_, err := s.ExecuteAtomic(ctx, key, fixedWindowTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		var count uint64
		var prev *uint64
		if current != nil && current.WindowStart == bStart {
			count = current.Count
			prev = current.PrevCount
		} else if current != nil {
			old := current.Count
			prev = &old
		}

		if delta < 0 {
			count += uint64(-delta)
		} else if uint64(delta) <= count {
			count -= uint64(delta)
		} else {
			count = 0
		}
		return &storage.Entry{Count: count, WindowStart: bStart, PrevCount: prev, LastUpdate: now.UnixMilli()}, nil
	})
	return err
}
