package monitor

import (
	"errors"
	"fmt"
)

// ViolationKind categorizes violations.
type ViolationKind string

const (
	// Safety: a transition reached the Error sentinel.
	Safety ViolationKind = "safety"

	// Liveness: a non-final state was still active at End.
	Liveness ViolationKind = "liveness"

	// Invariant: a registered invariant was false after an event.
	Invariant ViolationKind = "invariant"
)

// Violation describes one recorded error.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Monitor string        `json:"monitor"`
	Message string        `json:"message"`
	State   string        `json:"state,omitempty"` // offending state, empty for invariants
	Step    int64         `json:"step"`            // events seen by the monitor; 0 before the first
}

func (v Violation) String() string {
	if v.State != "" {
		return fmt.Sprintf("[%s] %s: %s (state %s, step %d)", v.Kind, v.Monitor, v.Message, v.State, v.Step)
	}
	return fmt.Sprintf("[%s] %s: %s (step %d)", v.Kind, v.Monitor, v.Message, v.Step)
}

// AbortError is returned by Verify and End once a violation stopped
// verification under stop-on-error.
type AbortError struct {
	Violation Violation
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	return "verification aborted: " + e.Violation.String()
}

// IsAbort reports whether err is, or wraps, an *AbortError.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
