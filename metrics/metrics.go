// Package metrics defines the minimal telemetry-sink collaborator
// interface the manager package reports decision outcomes and storage
// latency to. Rate limiting itself never depends on any concrete
// metrics backend — callers wire in their own (Prometheus, OTel, ...)
// by implementing Recorder.
package metrics

import "time"

// Recorder receives rate-limit decision and latency events.
type Recorder interface {
	// IncrAllowed counts one allowed decision for algorithm/key.
	IncrAllowed(algorithm, key string)
	// IncrDenied counts one denied decision for algorithm/key.
	IncrDenied(algorithm, key string)
	// ObserveLatency records how long op (e.g. "check_and_record")
	// took.
	ObserveLatency(op string, d time.Duration)
}

// Noop is a Recorder that discards every event. The manager does not
// install it by default: with no Recorder configured it skips reporting.
type Noop struct{}

func (Noop) IncrAllowed(string, string)            {}
func (Noop) IncrDenied(string, string)              {}
func (Noop) ObserveLatency(string, time.Duration) {}
