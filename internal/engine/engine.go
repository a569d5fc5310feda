package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
)

// DefaultMaxStates is the default limit on active states per run.
// This stops a monitor that never discharges its facts from growing
// without bound.
const DefaultMaxStates = 100000

// Engine is the single-writer verification loop.
//
// The engine stamps events with the logical clock, verifies them against
// the monitor tree built from a spec set, and records the run: events,
// violations and the final fact snapshot.
//
// Thread-safety model:
//   - Enqueue(), Stop(), OnViolation(): safe from any goroutine
//   - Run(), Process(), End(): must be called from exactly one goroutine
//
// Violation listeners are called synchronously from that goroutine and
// must not block.
type Engine struct {
	store    *store.Store
	rt       *Runtime
	clock    SeqClock
	queue    *eventQueue
	runIDGen RunIDGenerator
	runID    string
	specHash string
	quota    *StateQuota
	monOpts  []monitor.Option

	mu         sync.Mutex // guards listeners and violations
	listeners  []func(ir.Violation)
	violations []ir.Violation

	started    bool
	ended      bool
	failed     error // abort or quota error that stopped the run
	current    int64 // seq of the event being verified, 0 at End
	events     int64
	pending    []ir.Violation
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithStore records the run in s. Without a store the engine verifies in
// memory only.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) { e.store = s }
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(gen RunIDGenerator) EngineOption {
	return func(e *Engine) { e.runIDGen = gen }
}

// WithRunID fixes the run id. Used by replay to reproduce violation ids.
func WithRunID(id string) EngineOption {
	return func(e *Engine) { e.runID = id }
}

// WithClock sets the seq clock. Default: a new Clock starting at 0.
func WithClock(c SeqClock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithMaxStates sets the active state quota.
//
// Default: 100000 states (DefaultMaxStates). 0 disables the quota.
// Use WithMaxStates(10) for testing quota enforcement.
func WithMaxStates(n int) EngineOption {
	return func(e *Engine) { e.quota = NewStateQuota(n) }
}

// WithMonitorOptions passes options to every monitor of the tree, after
// the options a spec sets itself.
func WithMonitorOptions(opts ...monitor.Option) EngineOption {
	return func(e *Engine) { e.monOpts = append(e.monOpts, opts...) }
}

// WithViolationListener registers a listener called once per violation.
func WithViolationListener(fn func(ir.Violation)) EngineOption {
	return func(e *Engine) { e.listeners = append(e.listeners, fn) }
}

// New builds the monitor tree for specs and creates an engine around it.
func New(specs []ir.MonitorSpec, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		clock:    NewClock(),
		queue:    newEventQueue(),
		runIDGen: UUIDv7Generator{},
		quota:    NewStateQuota(DefaultMaxStates),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = e.runIDGen.Generate()
	}

	hash, err := ir.SpecHash(specs)
	if err != nil {
		return nil, err
	}
	e.specHash = hash

	monOpts := append(append([]monitor.Option{}, e.monOpts...), monitor.WithViolationHandler(e.collect))
	rt, err := Build(specs, monOpts...)
	if err != nil {
		return nil, err
	}
	e.rt = rt
	return e, nil
}

// RunID returns the id of the run.
func (e *Engine) RunID() string { return e.runID }

// SpecHash returns the fingerprint of the spec set.
func (e *Engine) SpecHash() string { return e.specHash }

// Runtime returns the monitor tree.
func (e *Engine) Runtime() *Runtime { return e.rt }

// Violations returns the violations reported so far. Thread-safe.
func (e *Engine) Violations() []ir.Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ir.Violation(nil), e.violations...)
}

// OnViolation registers a listener. Thread-safe.
func (e *Engine) OnViolation(fn func(ir.Violation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev ir.Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for Run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// QueuePeak returns the largest backlog Run has had to work through.
func (e *Engine) QueuePeak() int {
	return e.queue.Peak()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled, Stop() is called or the run aborts.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: A failure on one event (invalid event, store write) is
// logged with the event and processing continues. An abort (stop-on-error
// violation or quota) closes the queue and is returned.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "run_id", e.runID)

	for {
		batch := e.queue.Take()
		for _, ev := range batch {
			if err := e.Process(ctx, ev); err != nil {
				if e.failed != nil {
					slog.Error("engine stopping: run aborted", "run_id", e.runID, "error", err)
					e.queue.Close()
					return err
				}
				logEventError(ev, err)
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "run_id", e.runID)
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// Wait is closed with the queue, so this fires at once after Stop.
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed", "run_id", e.runID, "peak_backlog", e.queue.Peak())
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue; Run returns once the queue is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Process stamps ev with the next seq and verifies it.
//
// The returned error is non-nil when the event was rejected, could not be
// recorded, or when the run is aborted (monitor.AbortError or a quota
// error).
func (e *Engine) Process(ctx context.Context, ev ir.Event) error {
	if err := e.admit(ev); err != nil {
		return err
	}
	ev.Seq = e.clock.Next()
	return e.verify(ctx, ev)
}

func (e *Engine) admit(ev ir.Event) error {
	if e.ended {
		return &RuntimeError{Code: ErrCodeRunEnded, Message: "run already ended", RunID: e.runID}
	}
	if e.failed != nil {
		return e.failed
	}
	if ev.Name == "" {
		return NewInvalidEventError(e.runID, "event name is required")
	}
	return nil
}

// verify runs one stamped event through the monitor tree.
// CRITICAL: Called only from the single writer goroutine.
func (e *Engine) verify(ctx context.Context, ev ir.Event) error {
	if err := e.start(ctx); err != nil {
		return err
	}

	slog.Debug("verifying event", "run_id", e.runID, "seq", ev.Seq, "event", ev.String())

	if e.store != nil {
		if _, err := e.store.WriteEvent(ctx, e.runID, ev); err != nil {
			return fmt.Errorf("record event seq %d: %w", ev.Seq, err)
		}
	}
	e.events++
	e.current = ev.Seq

	verr := e.rt.Root.Verify(ev)
	if err := e.flush(ctx); err != nil {
		return err
	}
	if verr != nil {
		return e.abort(ctx, verr)
	}

	states := e.rt.States()
	if err := e.quota.Check(e.runID, states); err != nil {
		slog.Error("max states quota exceeded",
			"run_id", e.runID,
			"seq", ev.Seq,
			"states", states,
			"limit", e.quota.MaxStates(),
			"event", "quota_exceeded",
		)
		return e.abort(ctx, fmt.Errorf("%w: %w", NewQuotaError(e.runID, states, e.quota.MaxStates()), err))
	}
	return nil
}

// End closes the run: the monitors report liveness violations, and the
// fact snapshot and final status are recorded. End is idempotent.
func (e *Engine) End(ctx context.Context) (*Result, error) {
	if e.ended {
		return e.result(), nil
	}
	if err := e.start(ctx); err != nil {
		return nil, err
	}

	e.current = 0
	if e.failed == nil {
		if err := e.rt.Root.End(); err != nil {
			e.failed = err
		}
	}
	if err := e.flush(ctx); err != nil {
		return nil, err
	}
	e.ended = true

	if e.store != nil {
		if err := e.store.WriteFacts(ctx, e.runID, e.rt.Facts()); err != nil {
			return nil, fmt.Errorf("record facts: %w", err)
		}
		res := e.result()
		if err := e.store.FinishRun(ctx, e.runID, res.Status, res.Events, int64(res.Errors)); err != nil {
			return nil, err
		}
	}

	res := e.result()
	slog.Info("run ended",
		"run_id", e.runID,
		"status", res.Status,
		"events", res.Events,
		"errors", res.Errors,
	)
	return res, nil
}

// Result summarizes a run.
type Result struct {
	RunID      string         `json:"run_id"`
	SpecHash   string         `json:"spec_hash"`
	Status     string         `json:"status"`
	Events     int64          `json:"events"`
	Errors     int            `json:"errors"`
	Violations []ir.Violation `json:"violations"`
	Facts      []ir.Fact      `json:"facts,omitempty"`
}

// OK reports whether the run finished without violations.
func (r *Result) OK() bool {
	return r.Errors == 0 && r.Status == ir.RunEnded
}

func (e *Engine) result() *Result {
	status := ir.RunRunning
	switch {
	case e.failed != nil:
		status = ir.RunAborted
	case e.ended:
		status = ir.RunEnded
	}
	return &Result{
		RunID:      e.runID,
		SpecHash:   e.specHash,
		Status:     status,
		Events:     e.events,
		Errors:     e.rt.Root.ErrorCount(),
		Violations: e.Violations(),
		Facts:      e.rt.Facts(),
	}
}

// start records the run header on first use.
func (e *Engine) start(ctx context.Context) error {
	if e.started {
		return nil
	}
	if e.store != nil {
		if err := e.store.CreateRun(ctx, ir.Run{
			ID:            e.runID,
			SpecHash:      e.specHash,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
			Status:        ir.RunRunning,
		}); err != nil {
			return err
		}
	}
	e.started = true
	return nil
}

// abort marks the run failed. The status is written by End.
func (e *Engine) abort(ctx context.Context, err error) error {
	e.failed = err
	if e.store != nil {
		if ferr := e.store.FinishRun(ctx, e.runID, ir.RunAborted, e.events, int64(e.rt.Root.ErrorCount())); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	return err
}

// collect is the violation handler of every monitor. It only queues; the
// engine records and publishes after Verify or End returns.
func (e *Engine) collect(v monitor.Violation) {
	rec := ir.Violation{
		RunID:   e.runID,
		Monitor: v.Monitor,
		Kind:    string(v.Kind),
		Message: v.Message,
		State:   v.State,
		Step:    v.Step,
		Seq:     e.current,
		Index:   int64(len(e.pending)),
	}
	if id, err := ir.ViolationID(e.runID, rec); err == nil {
		rec.ID = id
	}
	e.pending = append(e.pending, rec)
}

func (e *Engine) flush(ctx context.Context) error {
	pending := e.pending
	e.pending = nil

	e.mu.Lock()
	listeners := append([]func(ir.Violation){}, e.listeners...)
	e.mu.Unlock()

	for _, v := range pending {
		e.mu.Lock()
		e.violations = append(e.violations, v)
		e.mu.Unlock()
		if e.store != nil {
			if err := e.store.WriteViolation(ctx, v); err != nil {
				return fmt.Errorf("record violation: %w", err)
			}
		}
		for _, fn := range listeners {
			fn(v)
		}
	}
	return nil
}

// logEventError logs event processing failures with enough context to
// replay the event by hand.
func logEventError(ev ir.Event, err error) {
	slog.Error("event processing failed",
		"event", ev.Name,
		"args", ev.Args,
		"seq", ev.Seq,
		"error", err,
	)
}
