package ratelimit

// FallbackStrategy defines how a manager behaves when the storage
// backend returns an error from check_and_record.
//
// Reference callers fail open by default (AllowAll), per the error
// handling design's preference for availability over protection.
type FallbackStrategy string

const (
	// AllowAll allows all requests when storage fails.
	AllowAll FallbackStrategy = "allow_all"

	// DenyAll denies all requests when storage fails.
	DenyAll FallbackStrategy = "deny_all"

	// LocalMemory is accepted by the manager but handled like AllowAll:
	// requests are allowed when storage fails. No in-memory failover
	// storage is switched in.
	LocalMemory FallbackStrategy = "local_memory"
)

// String returns the string representation of the fallback strategy.
func (f FallbackStrategy) String() string { return string(f) }

// Validate checks that the fallback strategy is one of the known
// values.
func (f FallbackStrategy) Validate() error {
	switch f {
	case AllowAll, DenyAll, LocalMemory:
		return nil
	default:
		return &InvalidConfigError{Field: "fallback_strategy", Value: f, Reason: "must be one of: allow_all, deny_all, local_memory"}
	}
}
