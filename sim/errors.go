package sim

import (
	"errors"
	"fmt"
)

// ErrAlreadyRun is returned when Run is called on a simulator that has already finished.
var ErrAlreadyRun = errors.New("simulation already run")

// ConfigError reports a malformed configuration: a bad transition matrix,
// a mode outside an agent's matrix, a duplicate agent ID or a non-positive duration.
// It is returned before any event is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidRateError reports a negative, NaN or infinite rate found while sampling.
// Matrices built with NewTransitionMatrix never produce it.
type InvalidRateError struct {
	From Mode
	To   Mode
	Rate float64
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("invalid rate %v for transition %d -> %d", e.Rate, e.From, e.To)
}

// InvalidEventError reports an event scheduled earlier than the last event popped
// from the queue.
type InvalidEventError struct {
	Time     float64
	LastTime float64
	Seq      uint64
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("event %d scheduled at %v, before last popped event at %v", e.Seq, e.Time, e.LastTime)
}

// CancelledError is the cause attached to a Result that stopped early on purpose,
// either because the context was cancelled or because the event budget ran out.
// It is not a failure: Run returns it in Result.Cause and a nil error.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	return "simulation cancelled: " + e.Cause.Error()
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// errBudgetExhausted is the cancellation cause when Config.MaxEvents is reached.
var errBudgetExhausted = errors.New("event budget exhausted")
