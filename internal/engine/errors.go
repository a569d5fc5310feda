package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during engine execution.
//
// Runtime errors include:
//   - Quota exceeded: the soups grew past the state limit
//   - Invalid event: an event without a name
//   - Run ended: an event arrived after End
//
// Violations are not runtime errors. They are reported to listeners and
// recorded, and only abort a run under stop-on-error.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeQuotaExceeded indicates the run exceeded max states.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeInvalidEvent indicates an event that cannot be verified.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"

	// ErrCodeRunEnded indicates an event arrived after the run ended.
	ErrCodeRunEnded RuntimeErrorCode = "RUN_ENDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StatesExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StatesExceededError
	return errors.As(err, &se)
}

// IsInvalidEvent returns true if the error rejects an event.
func IsInvalidEvent(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeInvalidEvent
}

// IsRunEnded returns true if the error reports a finished run.
func IsRunEnded(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeRunEnded
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(runID string, states, maxStates int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("run exceeded max states (%d > %d)", states, maxStates),
		RunID:   runID,
		Details: map[string]string{
			"states":     fmt.Sprintf("%d", states),
			"max_states": fmt.Sprintf("%d", maxStates),
		},
	}
}

// NewInvalidEventError creates a RuntimeError for a rejected event.
func NewInvalidEventError(runID, reason string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidEvent,
		Message: reason,
		RunID:   runID,
	}
}
