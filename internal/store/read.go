package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// ReadRun retrieves a run header by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.Run, error) {
	var run ir.Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, spec_hash, engine_version, ir_version, status, events, errors
		FROM runs
		WHERE id = ?
	`, id).Scan(
		&run.ID,
		&run.SpecHash,
		&run.EngineVersion,
		&run.IRVersion,
		&run.Status,
		&run.Events,
		&run.Errors,
	)
	if err != nil {
		return ir.Run{}, err
	}
	return run, nil
}

// ListRuns returns every run header. UUIDv7 run ids sort by creation time,
// so ORDER BY id lists runs oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, spec_hash, engine_version, ir_version, status, events, errors
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		var run ir.Run
		if err := rows.Scan(
			&run.ID,
			&run.SpecHash,
			&run.EngineVersion,
			&run.IRVersion,
			&run.Status,
			&run.Events,
			&run.Errors,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the events of a run.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, args, seq
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadViolations returns the violations of a run in the order they were
// reported.
//
// Returns an empty slice (not nil) if the run has no violations.
func (s *Store) ReadViolations(ctx context.Context, runID string) ([]ir.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, monitor, kind, message, state, step, seq, idx
		FROM violations
		WHERE run_id = ?
		ORDER BY ord ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	violations := []ir.Violation{}
	for rows.Next() {
		var v ir.Violation
		if err := rows.Scan(
			&v.ID,
			&v.RunID,
			&v.Monitor,
			&v.Kind,
			&v.Message,
			&v.State,
			&v.Step,
			&v.Seq,
			&v.Index,
		); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return violations, nil
}

// ReadFacts returns the fact snapshot of a run in snapshot order. An empty
// monitor reads the facts of every monitor.
func (s *Store) ReadFacts(ctx context.Context, runID, monitor string) ([]ir.Fact, error) {
	query := `
		SELECT key, monitor, name, args, hot
		FROM facts
		WHERE run_id = ?`
	params := []any{runID}
	if monitor != "" {
		query += ` AND monitor = ?`
		params = append(params, monitor)
	}
	query += `
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := []ir.Fact{}
	for rows.Next() {
		var (
			f        ir.Fact
			argsJSON string
			hot      int
		)
		if err := rows.Scan(&f.Key, &f.Monitor, &f.Name, &argsJSON, &hot); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if f.Args, err = unmarshalArgs(argsJSON); err != nil {
			return nil, fmt.Errorf("fact %s: %w", f.Key, err)
		}
		f.Hot = hot != 0
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

func scanEvent(rows *sql.Rows) (ir.Event, error) {
	var (
		ev       ir.Event
		argsJSON string
	)
	if err := rows.Scan(&ev.Name, &argsJSON, &ev.Seq); err != nil {
		return ir.Event{}, fmt.Errorf("scan event: %w", err)
	}
	args, err := unmarshalArgs(argsJSON)
	if err != nil {
		return ir.Event{}, fmt.Errorf("event seq %d: %w", ev.Seq, err)
	}
	ev.Args = args
	return ev, nil
}
