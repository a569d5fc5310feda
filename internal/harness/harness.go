package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/testutil"
)

// Harness holds one scenario run: the engine, its in-memory store and the
// deterministic helpers.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Compile the specs directory
//  2. Create fresh in-memory database and engine
//  3. Verify each event, checking expect_errors
//  4. End the run
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	specs, err := compiler.CompileDir(scenario.Specs)
	if err != nil {
		return nil, fmt.Errorf("failed to compile specs: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	monOpts := []monitor.Option{monitor.WithLogger(h.logger)}
	if scenario.StopOnError {
		monOpts = append(monOpts, monitor.WithStopOnError(true))
	}
	opts := []engine.EngineOption{
		engine.WithStore(st),
		engine.WithClock(h.clock),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithMonitorOptions(monOpts...),
	}
	if scenario.MaxStates > 0 {
		opts = append(opts, engine.WithMaxStates(scenario.MaxStates))
	}

	h.engine, err = engine.New(specs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build monitors: %w", err)
	}

	result := NewResult()
	result.RunID = h.engine.RunID()

	if err := h.executeEvents(ctx, scenario.Events, result); err != nil {
		return nil, fmt.Errorf("failed to execute events: %w", err)
	}

	res, err := h.engine.End(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to end run: %w", err)
	}
	result.Status = res.Status
	result.AddEnd(res.Violations[len(result.Violations):])
	for _, f := range res.Facts {
		result.Facts = append(result.Facts, f.Monitor+"."+ir.FormatArgs(f.Name, f.Args))
	}
	sort.Strings(result.Facts)

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Runtime: h.engine.Runtime(),
		RunID:   result.RunID,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeEvents verifies each event in order.
//
// An abort (stop-on-error or the state quota) ends the trace: remaining
// events are skipped and the run is ended as aborted. Any other engine
// error fails the scenario.
func (h *Harness) executeEvents(ctx context.Context, steps []EventStep, result *Result) error {
	for i, step := range steps {
		args, err := ir.ObjectFromAny(step.Args)
		if err != nil {
			return fmt.Errorf("event %d: failed to convert args: %w", i, err)
		}
		if step.Seq != 0 {
			if err := h.clock.SkipTo(step.Seq); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		}

		before := len(h.engine.Violations())
		ev := ir.Event{Name: step.Event, Args: args}
		perr := h.engine.Process(ctx, ev)
		ev.Seq = h.clock.Current()

		if perr != nil && !monitor.IsAbort(perr) && !engine.IsQuotaError(perr) {
			return fmt.Errorf("event %d (%s): %w", i, ev.String(), perr)
		}
		result.AddEvent(ev, h.engine.Violations()[before:])

		if step.ExpectErrors != nil {
			if got := h.engine.Runtime().Root.ErrorCount(); got != *step.ExpectErrors {
				result.AddError(fmt.Sprintf("event %d (%s): expected %d errors, got %d",
					i, ev.String(), *step.ExpectErrors, got))
			}
		}

		h.logger.Info("event verified",
			"step", i,
			"seq", ev.Seq,
			"event", ev.String(),
			"errors", h.engine.Runtime().Root.ErrorCount(),
		)

		if perr != nil {
			h.logger.Info("run aborted", "step", i, "error", perr)
			break
		}
	}
	return nil
}
