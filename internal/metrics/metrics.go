// Package metrics defines the collector used to observe account aggregator calls.
package metrics

import "time"

// Outcome labels for a single AA call.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected" // short-circuited by the breaker
)

// Collector records AA calls. Implementations must be safe for concurrent use.
type Collector interface {
	ObserveCall(op, mode, outcome string, duration time.Duration)
	RecordBreakerState(name string, state BreakerState)
}

// BreakerState mirrors the circuit breaker states exposed as a gauge.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) ObserveCall(op, mode, outcome string, duration time.Duration) {}

func (NoOp) RecordBreakerState(name string, state BreakerState) {}
