// Package manager configures per-route rate limits over a shared
// algorithm and storage, resolving each request's route to a Quota via
// exact match, glob-style pattern, or a default fallback.
package manager

import (
	"context"
	"strings"
	"time"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/algorithm"
	"github.com/Vipul984/ratelimit/key"
	"github.com/Vipul984/ratelimit/metrics"
	"github.com/Vipul984/ratelimit/storage"
)

// RouteConfig is the rate limit configuration for a specific route.
type RouteConfig struct {
	Quota Quota
	// KeySuffix, if set, replaces the route path as the key suffix
	// (base_key:key_suffix instead of base_key:path).
	KeySuffix *string
}

// Quota is an alias kept local so manager.go reads standalone; it is
// exactly ratelimit.Quota.
type Quota = ratelimit.Quota

// NewRouteConfig builds a RouteConfig carrying just a quota.
func NewRouteConfig(q Quota) RouteConfig { return RouteConfig{Quota: q} }

// WithKeySuffix attaches a custom key suffix.
func (c RouteConfig) WithKeySuffix(suffix string) RouteConfig {
	c.KeySuffix = &suffix
	return c
}

// unlimitedInfo is substituted when no quota applies to a route: an
// effectively unbounded allow, valid for an hour.
func unlimitedInfo(now time.Time) ratelimit.RateLimitInfo {
	const maxU64 = ^uint64(0)
	return ratelimit.NewRateLimitInfo(maxU64, maxU64, now.Add(time.Hour), now)
}

// Logger is the minimal structured-logging capability the manager uses
// for fallback and storage-error events. A nil Logger disables logging.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Metrics is the telemetry-sink capability the manager reports decision
// outcomes and operation latency to. A nil Metrics disables reporting.
type Metrics = metrics.Recorder

// RouteManager routes requests of type R to a per-route Quota and
// delegates the decision to a single shared Algorithm/Storage pair.
type RouteManager[R any] struct {
	algo      algorithm.Algorithm
	storage   storage.Storage
	extractor key.Key[R]
	clock     algorithm.Clock

	defaultQuota *Quota
	routes       map[string]RouteConfig
	patterns     []patternRoute

	fallback FallbackStrategy
	logger   Logger
	metrics  Metrics
}

type patternRoute struct {
	pattern string
	config  RouteConfig
}

// FallbackStrategy controls manager behavior when storage returns an
// error from CheckAndRecord/Check.
type FallbackStrategy = ratelimit.FallbackStrategy

// Builder assembles a RouteManager.
type Builder[R any] struct {
	defaultQuota *Quota
	routes       map[string]RouteConfig
	patterns     []patternRoute
	extractor    key.Key[R]
	clock        algorithm.Clock
	fallback     FallbackStrategy
	logger       Logger
	metrics      Metrics
}

// NewBuilder starts a RouteManager builder for requests of type R.
func NewBuilder[R any]() *Builder[R] {
	return &Builder[R]{
		routes:   make(map[string]RouteConfig),
		fallback: ratelimit.AllowAll,
	}
}

// DefaultQuota sets the quota applied to routes with no specific
// configuration.
func (b *Builder[R]) DefaultQuota(q Quota) *Builder[R] {
	b.defaultQuota = &q
	return b
}

// Route registers an exact-path route configuration.
func (b *Builder[R]) Route(path string, config RouteConfig) *Builder[R] {
	b.routes[path] = config
	return b
}

// RoutePattern registers a glob-style route configuration. Patterns
// support "*" for a single path segment and "**" for the remainder of
// the path.
func (b *Builder[R]) RoutePattern(pattern string, config RouteConfig) *Builder[R] {
	b.patterns = append(b.patterns, patternRoute{pattern: pattern, config: config})
	return b
}

// KeyExtractor sets the key extractor used to derive the base key from
// each request.
func (b *Builder[R]) KeyExtractor(k key.Key[R]) *Builder[R] {
	b.extractor = k
	return b
}

// WithClock overrides the time source (tests only).
func (b *Builder[R]) WithClock(c algorithm.Clock) *Builder[R] {
	b.clock = c
	return b
}

// WithFallback sets the behavior on storage error. Default is AllowAll.
func (b *Builder[R]) WithFallback(f FallbackStrategy) *Builder[R] {
	b.fallback = f
	return b
}

// WithLogger attaches a logger for fallback/storage-error events.
func (b *Builder[R]) WithLogger(l Logger) *Builder[R] {
	b.logger = l
	return b
}

// WithMetrics attaches a telemetry sink for decision outcomes and
// operation latency.
func (b *Builder[R]) WithMetrics(m Metrics) *Builder[R] {
	b.metrics = m
	return b
}

// Build finalizes the RouteManager with the given algorithm and storage.
func (b *Builder[R]) Build(algo algorithm.Algorithm, store storage.Storage) (*RouteManager[R], error) {
	if err := b.fallback.Validate(); err != nil {
		return nil, err
	}
	extractor := b.extractor
	if extractor == nil {
		extractor = key.Global[R]()
	}
	return &RouteManager[R]{
		algo:         algo,
		storage:      store,
		extractor:    extractor,
		clock:        b.clock,
		defaultQuota: b.defaultQuota,
		routes:       b.routes,
		patterns:     b.patterns,
		fallback:     b.fallback,
		logger:       b.logger,
		metrics:      b.metrics,
	}, nil
}

// now reports the manager's clock, defaulting to wall time.
func (m *RouteManager[R]) now() time.Time {
	if m.clock == nil {
		return time.Now()
	}
	return m.clock.Now()
}

// getConfig resolves path to a RouteConfig: exact match first, then
// the first matching pattern in registration order.
func (m *RouteManager[R]) getConfig(path string) (RouteConfig, bool) {
	if c, ok := m.routes[path]; ok {
		return c, true
	}
	for _, p := range m.patterns {
		if patternMatches(p.pattern, path) {
			return p.config, true
		}
	}
	return RouteConfig{}, false
}

// buildKey derives the storage key for path/request given a resolved
// config: base_key:suffix if a KeySuffix is configured, else
// base_key:path. Extractor failure substitutes the literal base key
// "unknown" rather than failing the request.
func (m *RouteManager[R]) buildKey(path string, req R, config RouteConfig) string {
	base, ok := m.extractor.Extract(req)
	if !ok || base == "" {
		base = "unknown"
	}
	if config.KeySuffix != nil {
		return base + ":" + *config.KeySuffix
	}
	return base + ":" + path
}

// resolve returns the quota and storage key for path/request, and
// whether any quota (route-specific or default) applies at all.
func (m *RouteManager[R]) resolve(path string, req R) (Quota, string, bool) {
	config, hasConfig := m.getConfig(path)
	var quota Quota
	switch {
	case hasConfig:
		quota = config.Quota
	case m.defaultQuota != nil:
		quota = *m.defaultQuota
	default:
		return Quota{}, "", false
	}
	return quota, m.buildKey(path, req, config), true
}

// CheckAndRecord resolves path's quota, derives the storage key from
// req, and delegates to the configured Algorithm. A route with no
// quota configured (and no default) is allowed unconditionally. On a
// storage error, the configured FallbackStrategy decides the outcome.
func (m *RouteManager[R]) CheckAndRecord(ctx context.Context, path string, req R) (ratelimit.Decision, error) {
	start := m.now()
	quota, k, ok := m.resolve(path, req)
	if !ok {
		return ratelimit.Allow(unlimitedInfo(m.now())), nil
	}
	d, err := m.algo.CheckAndRecord(ctx, m.storage, k, quota)
	m.observe("check_and_record", start, d, err, k)
	if err != nil {
		return m.onStorageError(err)
	}
	return d, nil
}

// Check previews path/req's decision without recording anything.
func (m *RouteManager[R]) Check(ctx context.Context, path string, req R) (ratelimit.Decision, error) {
	start := m.now()
	quota, k, ok := m.resolve(path, req)
	if !ok {
		return ratelimit.Allow(unlimitedInfo(m.now())), nil
	}
	d, err := m.algo.Check(ctx, m.storage, k, quota)
	m.observe("check", start, d, err, k)
	if err != nil {
		return m.onStorageError(err)
	}
	return d, nil
}

// observe reports the outcome of a decision to the configured Metrics
// sink, if any. A storage error reports neither allowed nor denied.
func (m *RouteManager[R]) observe(op string, start time.Time, d ratelimit.Decision, err error, key string) {
	if m.metrics == nil {
		return
	}
	m.metrics.ObserveLatency(op, m.now().Sub(start))
	if err != nil {
		return
	}
	if d.Allowed {
		m.metrics.IncrAllowed(d.Info.Algorithm, key)
	} else {
		m.metrics.IncrDenied(d.Info.Algorithm, key)
	}
}

// Reset clears rate-limit state for the key that path and req resolve
// to. It does nothing when no quota applies to path.
func (m *RouteManager[R]) Reset(ctx context.Context, path string, req R) error {
	_, k, ok := m.resolve(path, req)
	if !ok {
		return nil
	}
	return m.algo.Reset(ctx, m.storage, k)
}

func (m *RouteManager[R]) onStorageError(err error) (ratelimit.Decision, error) {
	if m.logger != nil {
		m.logger.Error("rate limit storage error, applying fallback", "fallback", string(m.fallback), "error", err)
	}
	switch m.fallback {
	case ratelimit.DenyAll:
		info := unlimitedInfo(m.now())
		info.Remaining = 0
		return ratelimit.Deny(info), nil
	case ratelimit.AllowAll, ratelimit.LocalMemory:
		// The manager has no failover storage to switch to, so
		// LocalMemory fails open exactly like AllowAll.
		return ratelimit.Allow(unlimitedInfo(m.now())), nil
	default:
		return ratelimit.Decision{}, err
	}
}

// patternMatches reports whether pattern matches path using glob-style,
// segment-wise rules: "*" matches exactly one path segment, "**"
// matches the rest of the path (including zero segments).
func patternMatches(pattern, path string) bool {
	patternParts := splitNonEmpty(pattern)
	pathParts := splitNonEmpty(path)

	pi, pa := 0, 0
	for pi < len(patternParts) && pa < len(pathParts) {
		p := patternParts[pi]
		switch {
		case p == "**":
			return true
		case p == "*":
			pi++
			pa++
		case p == pathParts[pa]:
			pi++
			pa++
		default:
			return false
		}
	}
	// A trailing "**" matches even when the path is already exhausted.
	if pi < len(patternParts) && patternParts[pi] == "**" {
		pi++
	}
	return pi == len(patternParts) && pa == len(pathParts)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
