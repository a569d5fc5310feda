package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
)

func recordRun(t *testing.T, s *store.Store, spec ir.MonitorSpec, events []ir.Event, opts ...EngineOption) {
	t.Helper()
	opts = append(opts, WithStore(s))
	e := newTestEngine(t, []ir.MonitorSpec{spec}, opts...)
	ctx := context.Background()
	for _, ev := range events {
		if err := e.Process(ctx, ev); err != nil {
			break
		}
	}
	_, err := e.End(ctx)
	require.NoError(t, err)
}

func TestReplay_Identical(t *testing.T) {
	s := setupTestStore(t)
	events := []ir.Event{acquire(1, 7), acquire(2, 7), acquire(3, 8)}
	recordRun(t, s, lockSpec(), events)

	res, err := Replay(context.Background(), s, "run-1", []ir.MonitorSpec{lockSpec()}, quiet())
	require.NoError(t, err)

	assert.True(t, res.SpecHashMatch)
	assert.True(t, res.Identical, res.Difference)
	assert.Equal(t, 3, res.Events)
	assert.Len(t, res.Replayed, 2, "one safety and one liveness violation")
	assert.Equal(t, res.Original, res.Replayed)
}

func TestReplay_AbortedRun(t *testing.T) {
	s := setupTestStore(t)
	abort := WithMonitorOptions(monitor.WithStopOnError(true))
	recordRun(t, s, lockSpec(), []ir.Event{acquire(1, 7), acquire(2, 7), release(1, 7)}, abort)

	res, err := Replay(context.Background(), s, "run-1", []ir.MonitorSpec{lockSpec()}, quiet(), abort)
	require.NoError(t, err)
	assert.True(t, res.Identical, res.Difference)
	assert.Equal(t, 2, res.Events)
}

func TestReplay_ChangedSpecDiffers(t *testing.T) {
	s := setupTestStore(t)
	recordRun(t, s, lockSpec(), []ir.Event{acquire(1, 7), acquire(2, 7)})

	changed := lockSpec()
	changed.States[1].On[1].Message = "double acquire"

	res, err := Replay(context.Background(), s, "run-1", []ir.MonitorSpec{changed}, quiet())
	require.NoError(t, err)
	assert.False(t, res.SpecHashMatch)
	assert.False(t, res.Identical)
	assert.Contains(t, res.Difference, "double acquire")
}

// auditSpec reports every held lock when an audit event arrives, so one
// event can produce several identical violations.
func auditSpec() ir.MonitorSpec {
	spec := lockSpec()
	spec.States[0].On = append(spec.States[0].On, ir.TransitionSpec{
		Event:   "audit",
		Find:    &ir.FindSpec{FactPattern: ir.FactPattern{Fact: "Locked"}},
		Goto:    []ir.TargetSpec{{State: ir.TargetError}},
		Message: "lock held at audit",
	})
	return spec
}

func TestReplay_RepeatedViolationsInOneEvent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	e := newTestEngine(t, []ir.MonitorSpec{auditSpec()}, WithStore(s))
	for _, ev := range []ir.Event{acquire(1, 7), acquire(2, 8), named("audit")} {
		require.NoError(t, e.Process(ctx, ev))
	}

	audit := e.Violations()
	require.Len(t, audit, 2)
	assert.Equal(t, audit[0].Message, audit[1].Message)
	assert.Equal(t, int64(3), audit[1].Seq)
	assert.NotEqual(t, audit[0].ID, audit[1].ID)

	res, err := e.End(ctx)
	require.NoError(t, err)

	stored, err := s.ReadViolations(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, stored, res.Errors, "every reported violation is recorded")

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(stored)), run.Errors)

	replay, err := Replay(ctx, s, "run-1", []ir.MonitorSpec{auditSpec()}, quiet())
	require.NoError(t, err)
	assert.True(t, replay.Identical, replay.Difference)
	assert.Equal(t, stored, replay.Replayed)
}

func TestReplay_UnknownRun(t *testing.T) {
	s := setupTestStore(t)
	_, err := Replay(context.Background(), s, "missing", []ir.MonitorSpec{lockSpec()}, quiet())
	assert.Error(t, err)
}

func TestDiffViolations(t *testing.T) {
	a := ir.Violation{ID: "a", Kind: "safety", Monitor: "M", Message: "x", Seq: 1}
	b := ir.Violation{ID: "b", Kind: "safety", Monitor: "M", Message: "y", Seq: 2}

	assert.Empty(t, diffViolations([]ir.Violation{a}, []ir.Violation{a}))
	assert.Contains(t, diffViolations([]ir.Violation{a, b}, []ir.Violation{a}), "not reproduced")
	assert.Contains(t, diffViolations([]ir.Violation{a}, []ir.Violation{a, b}), "not recorded")
	assert.Contains(t, diffViolations([]ir.Violation{a}, []ir.Violation{b}), "recorded [safety] M: x (seq 1)")
}
