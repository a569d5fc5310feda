package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/tracemon/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run header with minimal required fields.
func createTestRun(t *testing.T, s *Store, id string) ir.Run {
	t.Helper()
	run := ir.Run{
		ID:            id,
		SpecHash:      "test-hash",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	return run
}

func lockEvent(name string, thread, lock int64, seq int64) ir.Event {
	return ir.Event{
		Name: name,
		Args: ir.Object{"thread": ir.Int(thread), "lock": ir.Int(lock)},
		Seq:  seq,
	}
}
