package algorithm

import (
	"context"
	"math"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/storage"
)

// GCRA implements the Generic Cell Rate Algorithm. State is a single
// field: the Theoretical Arrival Time (TAT), the earliest wall-clock
// moment at which a subsequent request would exactly match the
// contracted rate.
type GCRA struct {
	clock Clock
}

// NewGCRA constructs a GCRA algorithm. A nil clock uses real time.
func NewGCRA(c Clock) *GCRA { return &GCRA{clock: defaultClock(c)} }

func (g *GCRA) Name() string { return "gcra" }

func gcraTTL(quota ratelimit.Quota) time.Duration {
	return quota.MaxTATOffset() + 2*quota.Period()
}

// gcraDecide performs the GCRA admission rule for a single candidate
// TAT value, returning the Decision and the TAT to store if allowed.
func gcraDecide(quota ratelimit.Quota, currentTAT *int64, now time.Time) (ratelimit.Decision, int64) {
	period := quota.Period()
	burstTolerance := quota.MaxTATOffset()
	nowMs := now.UnixMilli()

	effectiveTAT := nowMs
	if currentTAT != nil {
		effectiveTAT = *currentTAT
	}

	base := effectiveTAT
	if nowMs > base {
		base = nowMs
	}
	newTAT := base + period.Milliseconds()
	offset := newTAT - nowMs

	remaining := gcraRemaining(quota, effectiveTAT, nowMs, period)

	if offset <= (burstTolerance + period).Milliseconds() {
		resetAt := time.UnixMilli(newTAT)
		if resetAt.Before(now) {
			resetAt = now
		}
		info := ratelimit.NewRateLimitInfo(quota.MaxRequests(), remaining-1, resetAt, now).WithAlgorithm("gcra")
		return ratelimit.Allow(info), newTAT
	}

	retryAfter := time.Duration(effectiveTAT-nowMs-burstTolerance.Milliseconds()) * time.Millisecond
	if retryAfter < 0 {
		retryAfter = 0
	}
	resetAt := time.UnixMilli(effectiveTAT)
	info := ratelimit.NewRateLimitInfo(quota.MaxRequests(), remaining, resetAt, now).
		WithAlgorithm("gcra").WithRetryAfter(retryAfter)
	return ratelimit.Deny(info), effectiveTAT
}

func gcraRemaining(quota ratelimit.Quota, tat, now int64, period time.Duration) uint64 {
	burst := quota.EffectiveBurst()
	diff := tat - now
	if diff < 0 {
		diff = 0
	}
	used := uint64(math.Ceil(float64(diff) / float64(period.Milliseconds())))
	if used > burst {
		return 0
	}
	return burst - used
}

// CheckAndRecord implements Algorithm.
func (g *GCRA) CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	var decision ratelimit.Decision
	now := g.clock.Now()

	_, err := s.ExecuteAtomic(ctx, key, gcraTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		var currentTAT *int64
		if current != nil {
			currentTAT = current.TAT
		}
		d, newTAT := gcraDecide(quota, currentTAT, now)
		decision = d

		next := &storage.Entry{LastUpdate: now.UnixMilli()}
		if d.IsAllowed() {
			next.TAT = &newTAT
		} else if currentTAT != nil {
			next.TAT = currentTAT
		} else {
			next.TAT = &newTAT
		}
		return next, nil
	})
	if err != nil {
		return ratelimit.Decision{}, err
	}
	return decision, nil
}

// Check implements Algorithm (read-only preview).
func (g *GCRA) Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	var currentTAT *int64
	if entry != nil {
		currentTAT = entry.TAT
	}
	d, _ := gcraDecide(quota, currentTAT, g.clock.Now())
	return d, nil
}

// Reset implements Algorithm.
func (g *GCRA) Reset(ctx context.Context, s storage.Storage, key string) error {
	return s.Delete(ctx, key)
}

// AdjustCost advances or retracts TAT by delta*period. Positive delta
// (refund) moves TAT earlier, floored at "now" since TAT never
// represents a past moment once restored. Negative delta (extra
// charge) moves TAT later.
func (g *GCRA) AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error {
	now := g.clock.Now()
	period := quota.Period().Milliseconds()

	_, err := s.ExecuteAtomic(ctx, key, gcraTTL(quota), func(current *storage.Entry) (*storage.Entry, any) {
		tat := now.UnixMilli()
		if current != nil && current.TAT != nil {
			tat = *current.TAT
		}
		adjusted := tat - delta*period
		if adjusted < now.UnixMilli() {
			adjusted = now.UnixMilli()
		}
		next := &storage.Entry{TAT: &adjusted, LastUpdate: now.UnixMilli()}
		return next, nil
	})
	return err
}
