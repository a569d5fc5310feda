package engine

import (
	"errors"
	"fmt"
)

// StateQuota bounds the total number of active states of a run.
//
// A soup only grows when transitions create more facts than they consume,
// typically one per distinct binding. A monitor that never discharges its
// facts grows without limit on an unbounded trace; the quota turns that
// into a run error instead of unbounded memory.
//
// The quota is checked after every verified event.
type StateQuota struct {
	maxStates int // Maximum allowed states, 0 disables the check
	peak      int // Largest size seen
}

// NewStateQuota creates a quota with the given limit.
//
// maxStates: Maximum number of states summed over all monitors.
// Typical default: 100000 (configurable via engine.WithMaxStates())
func NewStateQuota(maxStates int) *StateQuota {
	return &StateQuota{maxStates: maxStates}
}

// Check records the current soup size and validates it against the limit.
//
// Returns StatesExceededError if the quota is exceeded.
func (q *StateQuota) Check(runID string, states int) error {
	if states > q.peak {
		q.peak = states
	}
	if q.maxStates > 0 && states > q.maxStates {
		return &StatesExceededError{
			RunID:  runID,
			States: states,
			Limit:  q.maxStates,
		}
	}
	return nil
}

// Peak returns the largest soup size seen.
// Used for logging and diagnostics.
func (q *StateQuota) Peak() int {
	return q.peak
}

// MaxStates returns the limit.
func (q *StateQuota) MaxStates() int {
	return q.maxStates
}

// StatesExceededError is returned when a run exceeds the max states quota.
//
// This error aborts the run: no further events are verified.
type StatesExceededError struct {
	RunID  string // The run that exceeded the quota
	States int    // Number of active states
	Limit  int    // Maximum allowed states
}

// Error implements the error interface.
func (e *StatesExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max states quota: %d states > %d limit",
		e.RunID, e.States, e.Limit)
}

// IsStatesExceededError returns true if the error is a StatesExceededError.
// Uses errors.As to handle wrapped errors.
func IsStatesExceededError(err error) bool {
	var se *StatesExceededError
	return errors.As(err, &se)
}
