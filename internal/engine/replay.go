package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
)

// ReplayResult compares a stored run with a fresh verification of its
// events.
//
// Replay is not a special mode: the replaying engine runs the same verify
// path under the stored run id, stamping each event with its stored seq.
// Violation ids hash run id, monitor, kind, message, state, step and seq,
// so identical behavior yields identical ids.
type ReplayResult struct {
	RunID         string         `json:"run_id"`
	Events        int            `json:"events"`
	SpecHashMatch bool           `json:"spec_hash_match"`
	Original      []ir.Violation `json:"original"`
	Replayed      []ir.Violation `json:"replayed"`
	Identical     bool           `json:"identical"`
	Difference    string         `json:"difference,omitempty"`
}

// Replay re-verifies a stored run against specs, in memory, and reports
// whether the violations match the recorded ones.
//
// A spec set that differs from the recorded one is not an error: the result
// reports SpecHashMatch=false and the comparison still runs, which is how
// a spec change is checked against old traces.
func Replay(ctx context.Context, st *store.Store, runID string, specs []ir.MonitorSpec, opts ...EngineOption) (*ReplayResult, error) {
	log, err := st.ReadRunLog(ctx, runID)
	if err != nil {
		return nil, err
	}

	opts = append(append([]EngineOption{}, opts...), WithRunID(runID), WithStore(nil))
	e, err := New(specs, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	for _, ev := range log.Events {
		if err := e.admit(ev); err != nil {
			break
		}
		if err := e.verify(ctx, ev); err != nil && e.failed == nil {
			return nil, fmt.Errorf("replay %s: event seq %d: %w", runID, ev.Seq, err)
		}
	}
	if log.Run.Status != ir.RunRunning {
		if _, err := e.End(ctx); err != nil {
			return nil, fmt.Errorf("replay %s: %w", runID, err)
		}
	}

	res := &ReplayResult{
		RunID:         runID,
		Events:        len(log.Events),
		SpecHashMatch: log.Run.SpecHash == e.SpecHash(),
		Original:      log.Violations,
		Replayed:      e.Violations(),
	}
	res.Difference = diffViolations(res.Original, res.Replayed)
	res.Identical = res.Difference == ""
	return res, nil
}

// diffViolations describes the first difference between two violation
// lists, or returns "" when they are identical.
func diffViolations(original, replayed []ir.Violation) string {
	for i := 0; i < len(original) && i < len(replayed); i++ {
		if original[i].ID != replayed[i].ID {
			return fmt.Sprintf("violation %d: recorded %s, replayed %s",
				i, describeViolation(original[i]), describeViolation(replayed[i]))
		}
	}
	switch {
	case len(original) > len(replayed):
		return fmt.Sprintf("violation %d: recorded %s, not reproduced",
			len(replayed), describeViolation(original[len(replayed)]))
	case len(replayed) > len(original):
		return fmt.Sprintf("violation %d: replayed %s, not recorded",
			len(original), describeViolation(replayed[len(original)]))
	}
	return ""
}

func describeViolation(v ir.Violation) string {
	return fmt.Sprintf("[%s] %s: %s (seq %d)", v.Kind, v.Monitor, v.Message, v.Seq)
}
