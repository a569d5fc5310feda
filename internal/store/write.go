package store

import (
	"context"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// CreateRun inserts a run header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - recording the same run
// twice keeps the first header.
func (s *Store) CreateRun(ctx context.Context, run ir.Run) error {
	status := run.Status
	if status == "" {
		status = ir.RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, spec_hash, engine_version, ir_version, status, events, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.SpecHash,
		run.EngineVersion,
		run.IRVersion,
		status,
		run.Events,
		run.Errors,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the final status and counters of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, events, errors int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, events = ?, errors = ?
		WHERE id = ?
	`, status, events, errors, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

// WriteEvent appends an event to a run and returns its content-addressed id.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
//
// The event's Args are serialized to canonical JSON per RFC 8785 for
// deterministic replay.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, runID string, ev ir.Event) (string, error) {
	id, err := ir.EventID(runID, ev)
	if err != nil {
		return "", fmt.Errorf("write event: %w", err)
	}
	argsJSON, err := marshalArgs(ev.Args)
	if err != nil {
		return "", fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, run_id, name, args, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		runID,
		ev.Name,
		argsJSON,
		ev.Seq,
	)
	if err != nil {
		return "", fmt.Errorf("write event: %w", err)
	}
	return id, nil
}

// WriteViolation records a violation. The id is computed when empty.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteViolation(ctx context.Context, v ir.Violation) error {
	if v.ID == "" {
		id, err := ir.ViolationID(v.RunID, v)
		if err != nil {
			return fmt.Errorf("write violation: %w", err)
		}
		v.ID = id
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO violations
		(id, run_id, monitor, kind, message, state, step, seq, idx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		v.ID,
		v.RunID,
		v.Monitor,
		v.Kind,
		v.Message,
		v.State,
		v.Step,
		v.Seq,
		v.Index,
	)
	if err != nil {
		return fmt.Errorf("write violation: %w", err)
	}
	return nil
}

// WriteFacts replaces the fact snapshot of a run in a single transaction.
// Facts keep the order of the slice, which queries read back.
func (s *Store) WriteFacts(ctx context.Context, runID string, facts []ir.Fact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write facts: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("write facts: clear snapshot: %w", err)
	}

	for _, f := range facts {
		argsJSON, err := marshalArgs(f.Args)
		if err != nil {
			return fmt.Errorf("write facts: %s: %w", f.Name, err)
		}
		key := f.Key
		if key == "" {
			if key, err = ir.FactKey(f.Name, f.Args); err != nil {
				return fmt.Errorf("write facts: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO facts
			(run_id, monitor, key, name, args, hot)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, monitor, key) DO NOTHING
		`,
			runID,
			f.Monitor,
			key,
			f.Name,
			argsJSON,
			boolToInt(f.Hot),
		)
		if err != nil {
			return fmt.Errorf("write facts: insert %s: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write facts: commit: %w", err)
	}
	return nil
}
