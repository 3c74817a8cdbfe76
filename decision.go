package ratelimit

import (
	"strconv"
	"time"
)

// Decision is the result of a rate limit check: whether the request is
// allowed, plus the RateLimitInfo describing the current state.
type Decision struct {
	Allowed bool
	Info    RateLimitInfo
}

// Allow builds an "allowed" Decision.
func Allow(info RateLimitInfo) Decision { return Decision{Allowed: true, Info: info} }

// Deny builds a "denied" Decision.
func Deny(info RateLimitInfo) Decision { return Decision{Allowed: false, Info: info} }

// IsAllowed reports whether the request was allowed.
func (d Decision) IsAllowed() bool { return d.Allowed }

// IsDenied reports whether the request was denied.
func (d Decision) IsDenied() bool { return !d.Allowed }

// RateLimitInfo carries everything needed to populate rate-limit HTTP
// headers and to make follow-up decisions (e.g. Policy adjustments).
type RateLimitInfo struct {
	Limit       uint64
	Remaining   uint64
	ResetAt     time.Time
	WindowStart time.Time
	RetryAfter  *time.Duration
	Algorithm   string
	Metadata    *DecisionMetadata
}

// NewRateLimitInfo builds a RateLimitInfo with no retry-after, algorithm
// name, or metadata set.
func NewRateLimitInfo(limit, remaining uint64, resetAt, windowStart time.Time) RateLimitInfo {
	return RateLimitInfo{Limit: limit, Remaining: remaining, ResetAt: resetAt, WindowStart: windowStart}
}

// WithRetryAfter sets the retry-after duration.
func (i RateLimitInfo) WithRetryAfter(d time.Duration) RateLimitInfo {
	i.RetryAfter = &d
	return i
}

// WithAlgorithm sets the algorithm name.
func (i RateLimitInfo) WithAlgorithm(name string) RateLimitInfo {
	i.Algorithm = name
	return i
}

// WithMetadata attaches decision metadata.
func (i RateLimitInfo) WithMetadata(m DecisionMetadata) RateLimitInfo {
	i.Metadata = &m
	return i
}

// TimeUntilReset returns the duration from now until ResetAt, floored at
// zero.
func (i RateLimitInfo) TimeUntilReset(now time.Time) time.Duration {
	d := i.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ResetSeconds returns TimeUntilReset rounded down to whole seconds.
func (i RateLimitInfo) ResetSeconds(now time.Time) int64 {
	return int64(i.TimeUntilReset(now) / time.Second)
}

// Headers projects this RateLimitInfo onto the standard rate-limit HTTP
// response headers (spec §6). now is used to compute X-RateLimit-Reset.
func (i RateLimitInfo) Headers(now time.Time) map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.FormatUint(i.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatUint(i.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(i.ResetSeconds(now), 10),
	}
	if i.RetryAfter != nil {
		h["Retry-After"] = strconv.FormatInt(int64(i.RetryAfter.Seconds()), 10)
	}
	if i.Algorithm != "" {
		h["X-RateLimit-Policy"] = i.Algorithm
	}
	return h
}

// DecisionMetadata carries optional algorithm-specific diagnostic
// details about a Decision.
type DecisionMetadata struct {
	Key             string
	Route           string
	TokensConsumed  *float64
	TokensAvailable *float64
	TAT             *uint64
}

// DenialBody is the JSON body returned when a denied Decision terminates
// a request (spec §6), with HTTP status 429.
type DenialBody struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retry_after"`
	Remaining  uint64 `json:"remaining"`
	Limit      uint64 `json:"limit"`
}

// NewDenialBody builds the standard 429 denial body from a denied
// Decision.
func NewDenialBody(d Decision, now time.Time) DenialBody {
	var retryAfter int64
	if d.Info.RetryAfter != nil {
		retryAfter = int64(d.Info.RetryAfter.Seconds())
	} else {
		retryAfter = d.Info.ResetSeconds(now)
	}
	return DenialBody{
		Error:      "Too Many Requests",
		RetryAfter: retryAfter,
		Remaining:  d.Info.Remaining,
		Limit:      d.Info.Limit,
	}
}
