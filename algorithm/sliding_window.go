package algorithm

import (
	"context"
	"math"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/storage"
)

// SlidingWindow blends the current and previous fixed-size buckets by
// how far the clock has progressed into the current bucket, avoiding
// Fixed Window's boundary burst.
//
// prev_count is written only inside this algorithm's own ExecuteAtomic
// closure — storage.Memory.Increment's own prev_count stash belongs to
// Fixed Window alone. See DESIGN.md Open Question 2.
type SlidingWindow struct {
	clock Clock
}

// NewSlidingWindow constructs a Sliding Window algorithm.
func NewSlidingWindow(c Clock) *SlidingWindow { return &SlidingWindow{clock: defaultClock(c)} }

func (w *SlidingWindow) Name() string { return "sliding_window" }

func slidingWindowTTL(quota ratelimit.Quota) time.Duration { return 2 * quota.Window() }

func bucketStart(now time.Time, window time.Duration) int64 {
	ms := now.UnixMilli()
	w := window.Milliseconds()
	return (ms / w) * w
}

func (w *SlidingWindow) decide(quota ratelimit.Quota, current *storage.Entry, now time.Time, record bool) (ratelimit.Decision, uint64, *uint64, int64) {
	window := quota.Window()
	bStart := bucketStart(now, window)

	var cur uint64
	var prev uint64
	if current != nil && current.WindowStart == bStart {
		cur = current.Count
		if current.PrevCount != nil {
			prev = *current.PrevCount
		}
	} else if current != nil && current.WindowStart == bStart-window.Milliseconds() {
		prev = current.Count
	}

	progress := float64(now.UnixMilli()-bStart) / float64(window.Milliseconds())
	weighted := float64(cur) + float64(prev)*(1-progress)

	maxReq := quota.MaxRequests()
	resetAt := time.UnixMilli(bStart).Add(window)

	if weighted < float64(maxReq) {
		newCur := cur
		if record {
			newCur = cur + 1
		}
		newWeighted := float64(newCur) + float64(prev)*(1-progress)
		remaining := uint64(0)
		if newWeighted < float64(maxReq) {
			remaining = uint64(math.Floor(float64(maxReq) - newWeighted))
		}
		info := ratelimit.NewRateLimitInfo(maxReq, remaining, resetAt, time.UnixMilli(bStart)).WithAlgorithm("sliding_window")
		return ratelimit.Allow(info), newCur, &prev, bStart
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	info := ratelimit.NewRateLimitInfo(maxReq, 0, resetAt, time.UnixMilli(bStart)).
		WithAlgorithm("sliding_window").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), cur, &prev, bStart
}

// CheckAndRecord implements Algorithm.
func (w *SlidingWindow) CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	now := w.clock.Now()

	_, err := s.ExecuteAtomic(ctx, key, slidingWindowTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		d, cur, prev, bStart := w.decide(quota, current, now, true)
		decision = d
		return &storage.Entry{Count: cur, PrevCount: prev, WindowStart: bStart, LastUpdate: now.UnixMilli()}, nil
	})
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return decision, nil
}

// Check implements Algorithm (read-only preview).
func (w *SlidingWindow) Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	d, _, _, _ := w.decide(quota, entry, w.clock.Now(), false)
	return d, nil
}

// Reset implements Algorithm.
func (w *SlidingWindow) Reset(ctx context.Context, s storage.Storage, key string) error {
	return s.Delete(ctx, key)
}

// AdjustCost applies delta to the current bucket's count: a negative
// delta (extra charge) increments count by |delta|; a positive delta
// (refund) decrements count by delta, floored at 0.
func (w *SlidingWindow) AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error {
	now := w.clock.Now()
	window := quota.Window()
	bStart := bucketStart(now, window)

	_, err := s.ExecuteAtomic(ctx, key, slidingWindowTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		var cur uint64
		var prev *uint64
		if current != nil && current.WindowStart == bStart {
			cur = current.Count
			prev = current.PrevCount
		} else if current != nil && current.WindowStart == bStart-window.Milliseconds() {
			old := current.Count
			prev = &old
		}

		if delta < 0 {
			cur += uint64(-delta)
		} else if uint64(delta) <= cur {
			cur -= uint64(delta)
		} else {
			cur = 0
		}
		return &storage.Entry{Count: cur, PrevCount: prev, WindowStart: bStart, LastUpdate: now.UnixMilli()}, nil
	})
	return err
}
