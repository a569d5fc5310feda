package harness

import (
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// TraceEvent is one verified event and the violations it caused.
type TraceEvent struct {
	Seq        int64    `json:"seq"`
	Event      string   `json:"event"`
	Violations []string `json:"violations,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	RunID  string `json:"run_id"`
	Status string `json:"status"`

	// Trace lists the verified events in order. Events after an abort
	// are not verified and do not appear.
	Trace []TraceEvent `json:"trace"`

	// End holds the violations reported when the run ended.
	End []string `json:"end,omitempty"`

	// Facts is the final snapshot, one formatted fact per entry.
	Facts []string `json:"facts"`

	Violations []ir.Violation `json:"violations"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []TraceEvent{},
		Facts:      []string{},
		Violations: []ir.Violation{},
		Errors:     []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a verified event with the violations it caused.
func (r *Result) AddEvent(ev ir.Event, vs []ir.Violation) {
	te := TraceEvent{Seq: ev.Seq, Event: ev.String()}
	for _, v := range vs {
		te.Violations = append(te.Violations, describe(v))
	}
	r.Trace = append(r.Trace, te)
	r.Violations = append(r.Violations, vs...)
}

// AddEnd records the violations reported at the end of the run.
func (r *Result) AddEnd(vs []ir.Violation) {
	for _, v := range vs {
		r.End = append(r.End, describe(v))
	}
	r.Violations = append(r.Violations, vs...)
}

func describe(v ir.Violation) string {
	return fmt.Sprintf("[%s] %s: %s", v.Kind, v.Monitor, v.Message)
}
