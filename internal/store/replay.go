package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// RunLog is everything recorded for one run, in replay order.
type RunLog struct {
	Run        ir.Run
	Events     []ir.Event
	Violations []ir.Violation
	Facts      []ir.Fact
}

// ReadRunLog loads a run with its events, violations and fact snapshot.
// Returns an error wrapping sql.ErrNoRows if the run does not exist.
func (s *Store) ReadRunLog(ctx context.Context, runID string) (*RunLog, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s not found: %w", runID, err)
		}
		return nil, fmt.Errorf("read run: %w", err)
	}

	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	violations, err := s.ReadViolations(ctx, runID)
	if err != nil {
		return nil, err
	}
	facts, err := s.ReadFacts(ctx, runID, "")
	if err != nil {
		return nil, err
	}

	return &RunLog{
		Run:        run,
		Events:     events,
		Violations: violations,
		Facts:      facts,
	}, nil
}

// GetLastSeq returns the highest event seq recorded for a run, or 0 if the
// run has no events. Used to resume a run's clock.
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM events WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
