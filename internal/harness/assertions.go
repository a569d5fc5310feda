package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
	"github.com/roach88/tracemon/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Event)
			for _, v := range event.Violations {
				fmt.Fprintf(&buf, "        %s\n", v)
			}
		}
	}

	return buf.String()
}

// assertErrorCount checks the total number of violations.
func assertErrorCount(result *Result, a Assertion) error {
	if len(result.Violations) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertErrorCount,
		Expected: fmt.Sprintf("%d violations", *a.Count),
		Actual:   fmt.Sprintf("%d violations: %s", len(result.Violations), describeAll(result.Violations)),
		Trace:    result.Trace,
	}
}

// assertViolation checks that some violation matches every field the
// assertion sets.
func assertViolation(result *Result, a Assertion) error {
	for _, v := range result.Violations {
		if a.Monitor != "" && v.Monitor != a.Monitor {
			continue
		}
		if a.Kind != "" && v.Kind != a.Kind {
			continue
		}
		if a.Message != "" && v.Message != a.Message {
			continue
		}
		if a.Seq != nil && v.Seq != *a.Seq {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertViolation,
		Expected: describeWanted(a),
		Actual:   "not found: " + describeAll(result.Violations),
		Trace:    result.Trace,
	}
}

// assertFact runs a fact query against the recorded snapshot.
func assertFact(ctx context.Context, st *store.Store, runID string, a Assertion) error {
	where, err := ir.ObjectFromAny(a.Where)
	if err != nil {
		return fmt.Errorf("%s: where: %w", a.Type, err)
	}
	pattern := ir.FactPattern{Fact: a.Fact, Where: where}
	matches, err := st.QueryFacts(ctx, runID, a.Monitor, queryir.FromPattern(pattern, nil), nil)
	if err != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("query %s", ir.FormatArgs(a.Fact, where)),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	want := a.Type == AssertFactPresent
	if (len(matches) > 0) == want {
		return nil
	}

	expected := "fact " + ir.FormatArgs(a.Fact, where)
	if a.Monitor != "" {
		expected += " in " + a.Monitor
	}
	if want {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: "no matching fact"}
	}
	found := make([]string, len(matches))
	for i, m := range matches {
		found[i] = m.Monitor + "." + ir.FormatArgs(m.Name, m.Args)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "no " + expected,
		Actual:   "found " + strings.Join(found, ", "),
	}
}

// assertDuringOn checks a during interval of the live monitor tree.
func assertDuringOn(rt *engine.Runtime, a Assertion) error {
	want := a.On == nil || *a.On
	on, ok := rt.DuringOn(a.Monitor, a.During)
	if !ok {
		return &AssertionError{
			Type:     AssertDuringOn,
			Expected: fmt.Sprintf("during %s.%s", a.Monitor, a.During),
			Actual:   "no such during",
		}
	}
	if on == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertDuringOn,
		Expected: fmt.Sprintf("during %s.%s on=%t", a.Monitor, a.During, want),
		Actual:   fmt.Sprintf("on=%t", on),
	}
}

func describeWanted(a Assertion) string {
	var parts []string
	if a.Monitor != "" {
		parts = append(parts, "monitor="+a.Monitor)
	}
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Message != "" {
		parts = append(parts, fmt.Sprintf("message=%q", a.Message))
	}
	if a.Seq != nil {
		parts = append(parts, fmt.Sprintf("seq=%d", *a.Seq))
	}
	return "violation with " + strings.Join(parts, " ")
}

func describeAll(vs []ir.Violation) string {
	if len(vs) == 0 {
		return "none"
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = fmt.Sprintf("%s (seq %d)", describe(v), v.Seq)
	}
	return strings.Join(out, "; ")
}

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Runtime *engine.Runtime
	RunID   string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertErrorCount:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: error_count requires count", i)
			} else {
				err = assertErrorCount(result, assertion)
			}
		case AssertViolation:
			err = assertViolation(result, assertion)
		case AssertFactPresent, AssertFactAbsent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else {
				err = assertFact(actx.Ctx, actx.Store, actx.RunID, assertion)
			}
		case AssertDuringOn:
			if actx == nil || actx.Runtime == nil {
				err = fmt.Errorf("assertion[%d]: during_on requires the monitor tree", i)
			} else {
				err = assertDuringOn(actx.Runtime, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
