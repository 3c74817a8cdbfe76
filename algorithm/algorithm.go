// Package algorithm implements the six rate-limiting algorithms (GCRA,
// Token Bucket, Leaky Bucket, Sliding Log, Sliding Window, Fixed
// Window), each sharing the ratelimit.Decision contract over a
// storage.Storage backend.
package algorithm

import (
	"context"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/internal/clock"
	"github.com/Vipul984/ratelimit/storage"
)

// Algorithm is implemented by each of the six rate-limiting strategies.
type Algorithm interface {
	// Name identifies the algorithm ("gcra", "token_bucket", ...).
	Name() string

	// CheckAndRecord evaluates and — if allowed — records a request for
	// key against quota, as exactly one storage.ExecuteAtomic call
	// (Fixed Window uses one storage.Increment call instead).
	CheckAndRecord(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error)

	// Check previews the decision without recording/consuming anything.
	Check(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota) (ratelimit.Decision, error)

	// Reset clears all state for key (default semantics: delete).
	Reset(ctx context.Context, s storage.Storage, key string) error

	// AdjustCost applies a signed token/count adjustment to key's stored
	// state — the binding point used by policy.Apply (see the policy
	// package). Positive delta refunds, negative delta charges
	// additional cost.
	AdjustCost(ctx context.Context, s storage.Storage, key string, quota ratelimit.Quota, delta int64) error
}

// Clock is re-exported so algorithm constructors can accept a
// deterministic time source in tests without importing internal/clock
// directly.
type Clock = clock.Clock

func defaultClock(c Clock) Clock {
	if c == nil {
		return clock.New()
	}
	return c
}

func nowMillis(c Clock) int64 { return c.Now().UnixMilli() }

func clampUint64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
