package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors, checkable with errors.Is().
var (
	// ErrRateLimitExceeded is returned when a rate limit has been
	// exceeded and the caller prefers exception-style control over
	// inspecting a Decision directly.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidConfig is returned when quota, algorithm, or storage
	// configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageUnavailable is matched by a ConnectionError, which
	// storage.NewRedis returns (inside a storage *Error) when it cannot
	// reach the server. Failures of later storage operations are
	// reported as storage *Error values that do not match it.
	ErrStorageUnavailable = errors.New("storage backend unavailable")

	// ErrKeyExtraction is returned when a key extractor cannot produce a
	// key for the given request.
	ErrKeyExtraction = errors.New("key extraction failed")

	// ErrContextCanceled wraps context.Canceled for rate-limit callers.
	ErrContextCanceled = errors.New("context canceled")

	// ErrContextDeadlineExceeded wraps context.DeadlineExceeded.
	ErrContextDeadlineExceeded = errors.New("context deadline exceeded")
)

// LimitExceededError carries retry metadata alongside
// ErrRateLimitExceeded.
//
// Example:
//
//	var limitErr *ratelimit.LimitExceededError
//	if errors.As(err, &limitErr) {
//	    fmt.Println(limitErr.RetryAfter)
//	}
type LimitExceededError struct {
	Key        string
	Limit      uint64
	Remaining  uint64
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for key %q: limit=%d remaining=%d, retry after %s",
		e.Key, e.Limit, e.Remaining, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }
func (e *LimitExceededError) Unwrap() error         { return ErrRateLimitExceeded }

// InvalidConfigError reports which configuration field was invalid and
// why. TryNewQuota and FallbackStrategy.Validate return this type;
// NewQuota panics instead.
type InvalidConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s = %v (%s)", e.Field, e.Value, e.Reason)
}

func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }
func (e *InvalidConfigError) Unwrap() error         { return ErrInvalidConfig }

// KeyExtractionError reports why a key extractor failed to produce a
// key, for observability; the route manager itself never propagates
// this as a hard failure — it substitutes the literal key "unknown".
type KeyExtractionError struct {
	Extractor string
	Reason    string
}

func (e *KeyExtractionError) Error() string {
	return fmt.Sprintf("key extraction failed [%s]: %s", e.Extractor, e.Reason)
}

func (e *KeyExtractionError) Is(target error) bool { return target == ErrKeyExtraction }
func (e *KeyExtractionError) Unwrap() error         { return ErrKeyExtraction }

// ConnectionError reports a failure establishing or using a storage
// backend connection.
type ConnectionError struct {
	Op   string // "connect", "timeout", "closed", "auth"
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error [%s]: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("connection error [%s]", e.Op)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrStorageUnavailable }
func (e *ConnectionError) Unwrap() error         { return e.Err }

// WrapContextError normalizes context errors to the package's sentinel
// errors so callers can use errors.Is uniformly regardless of backend.
func WrapContextError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrContextCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrContextDeadlineExceeded
	default:
		return err
	}
}
