package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Vipul984/ratelimit"
)

// RedisConfig configures the distributed Storage backend.
type RedisConfig struct {
	// Addr is the Redis server address ("host:port").
	Addr string
	// Password, DB select the logical connection (optional).
	Password string
	DB       int
	// KeyPrefix is prepended to every rate-limit key.
	KeyPrefix string
	// PoolSize bounds the connection pool. Defaults to go-redis's own
	// default if zero.
	PoolSize int
	// ConnectTimeout, ReadTimeout, WriteTimeout bound per-operation
	// latency.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// MaxCASAttempts bounds the optimistic-concurrency retry loop used
	// by ExecuteAtomic and CompareAndSwap. Defaults to 5.
	MaxCASAttempts int
}

// Redis is a Storage backend for distributed rate limiting, backed by
// github.com/redis/go-redis/v9. Unlike a plain GET-then-SET round trip,
// ExecuteAtomic and CompareAndSwap use WATCH/MULTI/EXEC optimistic
// transactions retried with exponential backoff, so concurrent writers
// on the same key cannot silently clobber each other.
type Redis struct {
	client    *goredis.Client
	prefix    string
	maxRetry  int
}

// NewRedis constructs a Redis backend and verifies connectivity with a
// PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts := &goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &Error{Backend: "redis", Op: "connect", Err: &ratelimit.ConnectionError{Op: "connect", Err: err}, Retryable: true}
	}

	maxRetry := cfg.MaxCASAttempts
	if maxRetry <= 0 {
		maxRetry = 5
	}

	return &Redis{client: client, prefix: cfg.KeyPrefix, maxRetry: maxRetry}, nil
}

func (r *Redis) fullKey(key string) string { return r.prefix + key }

func (r *Redis) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Millisecond
	b.MaxInterval = 20 * time.Millisecond
	return backoff.WithMaxRetries(b, uint64(r.maxRetry))
}

func decodeEntry(raw string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func encodeEntry(e *Entry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get implements Storage.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, r.fullKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Backend: "redis", Op: "get", Key: key, Err: err, Retryable: true}
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, &Error{Backend: "redis", Op: "get", Key: key, Err: err}
	}
	return entry, nil
}

// Set implements Storage.
func (r *Redis) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return &Error{Backend: "redis", Op: "set", Key: key, Err: err}
	}
	if err := r.client.Set(ctx, r.fullKey(key), raw, ttl).Err(); err != nil {
		return &Error{Backend: "redis", Op: "set", Key: key, Err: err, Retryable: true}
	}
	return nil
}

// Delete implements Storage.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		return &Error{Backend: "redis", Op: "delete", Key: key, Err: err, Retryable: true}
	}
	return nil
}

// Increment implements the Fixed Window counting primitive using a
// WATCH/MULTI/EXEC transaction so concurrent incrementers on the same
// key cannot race.
func (r *Redis) Increment(ctx context.Context, key string, delta uint64, windowStart int64, ttl time.Duration) (uint64, error) {
	full := r.fullKey(key)
	var result uint64

	op := func() error {
		err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, getErr := tx.Get(ctx, full).Result()
			var existing *Entry
			if getErr != nil && !errors.Is(getErr, goredis.Nil) {
				return getErr
			}
			if getErr == nil {
				existing, getErr = decodeEntry(raw)
				if getErr != nil {
					return backoff.Permanent(getErr)
				}
			}

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
			next := &Entry{Count: newCount, WindowStart: windowStart, LastUpdate: currentTimeMillis(), PrevCount: prev}
			encoded, encErr := encodeEntry(next)
			if encErr != nil {
				return backoff.Permanent(encErr)
			}

			_, txErr := tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, full, encoded, ttl)
				return nil
			})
			if txErr != nil {
				return txErr
			}
			result = newCount
			return nil
		}, full)
		return err
	}

	if err := backoff.Retry(op, r.backoffPolicy()); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return 0, &Error{Backend: "redis", Op: "increment", Key: key, Err: perm.Err}
		}
		return 0, &Error{Backend: "redis", Op: "increment", Key: key, Err: ErrAtomicConflict, Retryable: true}
	}
	return result, nil
}

// ExecuteAtomic implements Storage using a WATCH/MULTI/EXEC optimistic
// transaction, retried with exponential backoff up to MaxCASAttempts
// before surfacing a retryable AtomicConflict error. This closes the
// race present in a plain read-compute-write round trip.
func (r *Redis) ExecuteAtomic(ctx context.Context, key string, ttl time.Duration, fn AtomicOp) (any, error) {
	full := r.fullKey(key)
	var result any

	op := func() error {
		return r.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, getErr := tx.Get(ctx, full).Result()
			var current *Entry
			if getErr != nil && !errors.Is(getErr, goredis.Nil) {
				return getErr
			}
			if getErr == nil {
				current, getErr = decodeEntry(raw)
				if getErr != nil {
					return backoff.Permanent(getErr)
				}
			}

			next, res := fn(current)
			encoded, encErr := encodeEntry(next)
			if encErr != nil {
				return backoff.Permanent(encErr)
			}

			_, txErr := tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, full, encoded, ttl)
				return nil
			})
			if txErr != nil {
				return txErr
			}
			result = res
			return nil
		}, full)
	}

	if err := backoff.Retry(op, r.backoffPolicy()); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return nil, &Error{Backend: "redis", Op: "execute_atomic", Key: key, Err: perm.Err}
		}
		return nil, &Error{Backend: "redis", Op: "execute_atomic", Key: key, Err: ErrAtomicConflict, Retryable: true}
	}
	return result, nil
}

// CompareAndSwap implements Storage using the same WATCH-based
// transaction pattern as ExecuteAtomic.
func (r *Redis) CompareAndSwap(ctx context.Context, key string, expected, next *Entry, ttl time.Duration) (bool, error) {
	full := r.fullKey(key)
	var swapped bool

	op := func() error {
		return r.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, getErr := tx.Get(ctx, full).Result()
			var current *Entry
			if getErr != nil && !errors.Is(getErr, goredis.Nil) {
				return getErr
			}
			if getErr == nil {
				current, getErr = decodeEntry(raw)
				if getErr != nil {
					return backoff.Permanent(getErr)
				}
			}

			if !current.Equal(expected) {
				swapped = false
				return nil
			}

			encoded, encErr := encodeEntry(next)
			if encErr != nil {
				return backoff.Permanent(encErr)
			}
			_, txErr := tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, full, encoded, ttl)
				return nil
			})
			if txErr != nil {
				return txErr
			}
			swapped = true
			return nil
		}, full)
	}

	if err := backoff.Retry(op, r.backoffPolicy()); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return false, &Error{Backend: "redis", Op: "compare_and_swap", Key: key, Err: perm.Err}
		}
		return false, &Error{Backend: "redis", Op: "compare_and_swap", Key: key, Err: ErrAtomicConflict, Retryable: true}
	}
	return swapped, nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// Ping checks backend reachability.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &Error{Backend: "redis", Op: "ping", Err: err, Retryable: true}
	}
	return nil
}

func currentTimeMillis() int64 { return time.Now().UnixMilli() }
