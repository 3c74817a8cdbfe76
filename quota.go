// Package ratelimit implements a multi-algorithm rate-limiting core:
// GCRA, Token Bucket, Leaky Bucket, Sliding Log, Sliding Window, and
// Fixed Window, sharing one Quota/Decision contract over a pluggable
// Storage backend (see the storage, algorithm, key, manager, and policy
// subpackages).
package ratelimit

import "time"

// Quota describes how many requests are allowed over what time window,
// plus optional burst capacity and refill rate for token-based algorithms.
//
// A Quota is immutable once built. Use the constructors (PerSecond,
// PerMinute, PerHour, PerDay, Simple) together with the With* methods to
// assemble one.
//
// Example:
//
//	q := ratelimit.PerMinute(100).WithBurst(150)
type Quota struct {
	maxRequests uint64
	window      time.Duration
	burst       *uint64
	refillRate  *float64
}

// NewQuota creates a quota allowing maxRequests over window.
//
// Panics if maxRequests is 0 or window is non-positive — quota
// construction validates eagerly per the error handling design.
func NewQuota(maxRequests uint64, window time.Duration) Quota {
	if maxRequests == 0 {
		panic("ratelimit: max_requests must be greater than 0")
	}
	if window <= 0 {
		panic("ratelimit: window must be non-zero")
	}
	return Quota{maxRequests: maxRequests, window: window}
}

// PerSecond creates a quota allowing n requests per second.
func PerSecond(n uint64) Quota { return NewQuota(n, time.Second) }

// PerMinute creates a quota allowing n requests per minute.
func PerMinute(n uint64) Quota { return NewQuota(n, time.Minute) }

// PerHour creates a quota allowing n requests per hour.
func PerHour(n uint64) Quota { return NewQuota(n, time.Hour) }

// PerDay creates a quota allowing n requests per day.
func PerDay(n uint64) Quota { return NewQuota(n, 24*time.Hour) }

// Simple creates a GCRA-style quota with one request per period.
func Simple(period time.Duration) Quota { return NewQuota(1, period) }

// WithPeriodAndBurst creates a GCRA-style quota with a minimum period
// between requests and a given burst capacity.
func WithPeriodAndBurst(period time.Duration, burst uint64) Quota {
	return NewQuota(1, period).WithBurst(burst)
}

// TryNewQuota validates and constructs a quota, returning an error
// instead of panicking.
func TryNewQuota(maxRequests uint64, window time.Duration) (Quota, error) {
	if maxRequests == 0 {
		return Quota{}, &InvalidConfigError{Field: "max_requests", Value: maxRequests, Reason: "must be greater than 0"}
	}
	if window <= 0 {
		return Quota{}, &InvalidConfigError{Field: "window", Value: window, Reason: "must be non-zero"}
	}
	return Quota{maxRequests: maxRequests, window: window}, nil
}

// WithBurst sets the maximum burst size. The effective burst is always
// at least MaxRequests.
func (q Quota) WithBurst(burst uint64) Quota {
	if burst < q.maxRequests {
		burst = q.maxRequests
	}
	q.burst = &burst
	return q
}

// WithRefillRate sets a custom refill rate in requests per second,
// overriding the derived MaxRequests/Window default.
func (q Quota) WithRefillRate(rate float64) Quota {
	q.refillRate = &rate
	return q
}

// MaxRequests returns the configured maximum requests per window.
func (q Quota) MaxRequests() uint64 { return q.maxRequests }

// Window returns the configured time window.
func (q Quota) Window() time.Duration { return q.window }

// EffectiveBurst returns the configured burst, or MaxRequests if unset.
func (q Quota) EffectiveBurst() uint64 {
	if q.burst != nil {
		return *q.burst
	}
	return q.maxRequests
}

// EffectiveRefillRate returns the configured refill rate in requests per
// second, or MaxRequests/Window.Seconds() if unset.
func (q Quota) EffectiveRefillRate() float64 {
	if q.refillRate != nil {
		return *q.refillRate
	}
	return float64(q.maxRequests) / q.window.Seconds()
}

// Period returns the minimum spacing between requests implied by this
// quota (Window / MaxRequests), used by GCRA.
func (q Quota) Period() time.Duration {
	return time.Duration(q.window.Seconds() / float64(q.maxRequests) * float64(time.Second))
}

// MaxTATOffset returns GCRA's burst tolerance: Period * (EffectiveBurst - 1).
func (q Quota) MaxTATOffset() time.Duration {
	burst := q.EffectiveBurst()
	return time.Duration(q.Period().Seconds() * float64(burst-1) * float64(time.Second))
}

// FullReplenishTime returns how long until the quota is fully
// replenished from empty — equal to Window.
func (q Quota) FullReplenishTime() time.Duration { return q.window }

// DefaultQuota returns a 60 requests/minute quota.
func DefaultQuota() Quota { return PerMinute(60) }
