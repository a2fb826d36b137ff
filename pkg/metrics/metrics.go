// Package metrics provides metrics collection for SDispatch.
package metrics

import (
	"time"
)

// Outcome labels for a dispatch.
const (
	OutcomeFilter  = "filter"
	OutcomeRoute   = "route"
	OutcomeNoMatch = "no_match"
)

// Registration kinds reported by SetRegistered.
const (
	KindRoute  = "route"
	KindFilter = "filter"
)

// Recorder receives the dispatcher's measurements.
type Recorder interface {
	// ObserveDispatch records one outermost dispatch: how it ended, how long
	// it took and the error it returned, if any.
	ObserveDispatch(outcome string, duration time.Duration, err error)

	// SetRegistered records the current number of routes or filters.
	SetRegistered(kind string, n int)

	// ObservePatternCache records a pattern cache hit, miss or eviction.
	ObservePatternCache(event string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// ObserveDispatch does nothing.
func (NoopRecorder) ObserveDispatch(string, time.Duration, error) {}

// SetRegistered does nothing.
func (NoopRecorder) SetRegistered(string, int) {}

// ObservePatternCache does nothing.
func (NoopRecorder) ObservePatternCache(string) {}
