package algorithm

import (
	"context"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/storage"
)

// SlidingLog tracks individual request timestamps within a rolling
// window. It is the only algorithm without constant per-key memory:
// footprint is O(max_requests): CheckAndRecord appends a timestamp only
// on an allowed request and filters the log to the current window on
// every call. AdjustCost appends |delta| timestamps on a charge without
// filtering; those are dropped by the next CheckAndRecord once outside
// the window.
type SlidingLog struct {
	clock Clock
}

// NewSlidingLog constructs a Sliding Log algorithm.
func NewSlidingLog(c Clock) *SlidingLog { return &SlidingLog{clock: defaultClock(c)} }

func (l *SlidingLog) Name() string { return "sliding_log" }

func slidingLogTTL(quota ratelimit.Quota) time.Duration { return 2 * quota.Window() }

func (l *SlidingLog) decide(quota ratelimit.Quota, current *storage.Entry, now time.Time, record bool) (ratelimit.Decision, []int64) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - quota.Window().Milliseconds()

	var timestamps []int64
	if current != nil {
		for _, t := range current.Timestamps {
			if t >= cutoff {
				timestamps = append(timestamps, t)
			}
		}
	}

	maxReq := quota.MaxRequests()
	if uint64(len(timestamps)) < maxReq {
		next := timestamps
		if record {
			next = append(append([]int64(nil), timestamps...), nowMs)
		}
		remaining := maxReq - uint64(len(timestamps))
		if record {
			remaining--
		}
		resetAt := now
		if len(timestamps) > 0 {
			resetAt = time.UnixMilli(timestamps[0]).Add(quota.Window())
		}
		info := ratelimit.NewRateLimitInfo(maxReq, remaining, resetAt, now).WithAlgorithm("sliding_log")
		return ratelimit.Allow(info), next
	}

	retryAfter := time.UnixMilli(timestamps[0]).Add(quota.Window()).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	resetAt := time.UnixMilli(timestamps[0]).Add(quota.Window())
	info := ratelimit.NewRateLimitInfo(maxReq, 0, resetAt, now).
		WithAlgorithm("sliding_log").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), timestamps
}

// CheckAndRecord implements Algorithm.
func (l *SlidingLog) CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	now := l.clock.Now()

	_, err := s.ExecuteAtomic(ctx, key, slidingLogTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		d, timestamps := l.decide(quota, current, now, true)
		decision = d
		return &storage.Entry{Timestamps: timestamps, LastUpdate: now.UnixMilli()}, nil
	})
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return decision, nil
}

// Check implements Algorithm (read-only preview).
func (l *SlidingLog) Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	d, _ := l.decide(quota, entry, l.clock.Now(), false)
	return d, nil
}

// Reset implements Algorithm.
func (l *SlidingLog) Reset(ctx context.Context, s storage.Storage, key string) error {
	return s.Delete(ctx, key)
}

// AdjustCost implements the policy-refund binding for an algorithm with
// no token field: a negative delta (extra charge) appends |delta|
// synthetic timestamps at now; a positive delta (refund) drops the
// |delta| oldest timestamps, floored at an empty log.
func (l *SlidingLog) AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error {
	now := l.clock.Now()

	_, err := s.ExecuteAtomic(ctx, key, slidingLogTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		var timestamps []int64
		if current != nil {
			timestamps = append([]int64(nil), current.Timestamps...)
		}
		if delta < 0 {
			for i := int64(0); i < -delta; i++ {
				timestamps = append(timestamps, now.UnixMilli())
			}
		} else if delta > 0 {
			n := delta
			if n > int64(len(timestamps)) {
				n = int64(len(timestamps))
			}
			timestamps = timestamps[n:]
		}
		return &storage.Entry{Timestamps: timestamps, LastUpdate: now.UnixMilli()}, nil
	})
	return err
}
