package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/internal/clock"
)

// GCIntervalMode selects how the in-memory backend schedules garbage
// collection sweeps.
type GCIntervalMode struct {
	kind     gcKind
	requests uint64
	duration time.Duration
}

type gcKind int

const (
	gcUnset gcKind = iota // zero value: NewMemory substitutes GCRequests(1000)
	gcManual
	gcRequests
	gcDuration
)

// GCRequests triggers an opportunistic sweep attempt every n storage
// operations.
func GCRequests(n uint64) GCIntervalMode { return GCIntervalMode{kind: gcRequests, requests: n} }

// GCDuration runs a background goroutine that sweeps every d.
func GCDuration(d time.Duration) GCIntervalMode { return GCIntervalMode{kind: gcDuration, duration: d} }

// GCManual disables automatic GC; callers invoke Memory.RunGC explicitly.
func GCManual() GCIntervalMode { return GCIntervalMode{kind: gcManual} }

// MemoryConfig configures the in-memory backend.
type MemoryConfig struct {
	// Shards is the number of map shards. Defaults to 16 if zero.
	Shards int
	// Interval selects the GC trigger. Defaults to GCRequests(1000).
	Interval GCIntervalMode
	// MaxAge bounds how long an entry may go unused before GC may evict
	// it, even if its TTL has not yet expired — only entries exceeding
	// BOTH TTL and MaxAge are evicted. Defaults to 1 hour.
	MaxAge time.Duration
	// Clock is the time source. Defaults to clock.New() (real time).
	Clock clock.Clock
}

type shardEntry struct {
	entry     *Entry
	expiresAt time.Time
}

type shard struct {
	mu   sync.Mutex
	data map[string]*shardEntry
}

// Memory is a sharded, concurrent, GC'd in-process Storage
// implementation. Per-key atomicity is achieved by holding the owning
// shard's mutex for the duration of an AtomicOp; AtomicOp therefore must
// not block or perform I/O.
type Memory struct {
	shards   []*shard
	clock    clock.Clock
	maxAge   time.Duration
	interval GCIntervalMode

	opCount  atomic.Uint64
	gcLock   atomic.Bool // non-blocking guard: opportunistic GC never waits
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMemory constructs a Memory backend from cfg, applying defaults for
// zero-valued fields.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.Interval == (GCIntervalMode{}) {
		cfg.Interval = GCRequests(1000)
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	m := &Memory{
		shards:   make([]*shard, cfg.Shards),
		clock:    cfg.Clock,
		maxAge:   cfg.MaxAge,
		interval: cfg.Interval,
		stopCh:   make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{data: make(map[string]*shardEntry)}
	}

	if cfg.Interval.kind == gcDuration {
		m.wg.Add(1)
		go m.gcLoop(cfg.Interval.duration)
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return m.shards[h%uint64(len(m.shards))]
}

func (m *Memory) maybeOpportunisticGC() {
	if m.interval.kind != gcRequests {
		return
	}
	n := m.opCount.Add(1)
	if n%m.interval.requests != 0 {
		return
	}
	if !m.gcLock.CompareAndSwap(false, true) {
		return // another sweep already in flight; skip, non-blocking
	}
	defer m.gcLock.Store(false)
	m.sweep()
}

func (m *Memory) gcLoop(d time.Duration) {
	defer m.wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep removes entries whose TTL has expired AND whose LastUpdate is
// older than maxAge. Never evicts on TTL or MaxAge alone.
func (m *Memory) sweep() {
	now := m.clock.Now()
	cutoff := now.Add(-m.maxAge).UnixMilli()
	for _, sh := range m.shards {
		sh.mu.Lock()
		for k, v := range sh.data {
			if v.expiresAt.After(now) {
				continue
			}
			if v.entry != nil && v.entry.LastUpdate >= cutoff {
				continue
			}
			delete(sh.data, k)
		}
		sh.mu.Unlock()
	}
}

// RunGC forces an immediate sweep, for use with GCManual.
func (m *Memory) RunGC() { m.sweep() }

func (m *Memory) get(sh *shard, key string) *Entry {
	v, ok := sh.data[key]
	if !ok {
		return nil
	}
	if m.clock.Now().After(v.expiresAt) {
		delete(sh.data, key)
		return nil
	}
	return v.entry
}

// Get implements Storage.
func (m *Memory) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Backend: "memory", Op: "get", Key: key, Err: ratelimit.WrapContextError(err)}
	}
	m.maybeOpportunisticGC()
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return m.get(sh, key).Clone(), nil
}

// Set implements Storage.
func (m *Memory) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &Error{Backend: "memory", Op: "set", Key: key, Err: ratelimit.WrapContextError(err)}
	}
	m.maybeOpportunisticGC()
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.data[key] = &shardEntry{entry: entry.Clone(), expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

// Delete implements Storage.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Backend: "memory", Op: "delete", Key: key, Err: ratelimit.WrapContextError(err)}
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.data, key)
	return nil
}

// Increment implements Storage's Fixed Window counting primitive.
func (m *Memory) Increment(ctx context.Context, key string, delta uint64, windowStart int64, ttl time.Duration) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &Error{Backend: "memory", Op: "increment", Key: key, Err: ratelimit.WrapContextError(err)}
	}
	m.maybeOpportunisticGC()
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := m.clock.Now()
	existing := m.get(sh, key)

	var newCount uint64
	var prev *uint64
	if existing != nil && existing.WindowStart == windowStart {
		newCount = existing.Count + delta
		prev = existing.PrevCount
	} else {
		newCount = delta
		if existing != nil {
			old := existing.Count
			prev = &old
		}
	}

	next := &Entry{Count: newCount, WindowStart: windowStart, LastUpdate: now.UnixMilli(), PrevCount: prev}
	sh.data[key] = &shardEntry{entry: next, expiresAt: now.Add(ttl)}
	return newCount, nil
}

// ExecuteAtomic implements Storage. The shard's mutex is held for the
// duration of op, giving per-key atomicity; op must not block.
func (m *Memory) ExecuteAtomic(ctx context.Context, key string, ttl time.Duration, op AtomicOp) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Backend: "memory", Op: "execute_atomic", Key: key, Err: ratelimit.WrapContextError(err)}
	}
	m.maybeOpportunisticGC()
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current := m.get(sh, key)
	next, result := op(current)
	sh.data[key] = &shardEntry{entry: next, expiresAt: m.clock.Now().Add(ttl)}
	return result, nil
}

// CompareAndSwap implements Storage.
func (m *Memory) CompareAndSwap(ctx context.Context, key string, expected, next *Entry, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &Error{Backend: "memory", Op: "compare_and_swap", Key: key, Err: ratelimit.WrapContextError(err)}
	}
	sh := m.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current := m.get(sh, key)
	if !current.Equal(expected) {
		return false, nil
	}
	sh.data[key] = &shardEntry{entry: next.Clone(), expiresAt: m.clock.Now().Add(ttl)}
	return true, nil
}

// Close stops the background GC goroutine, if any.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	return nil
}

// Ping always succeeds for the in-memory backend.
func (m *Memory) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Backend: "memory", Op: "ping", Err: ratelimit.WrapContextError(err)}
	}
	return nil
}
