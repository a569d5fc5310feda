package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Default messages for violations without user text.
const (
	msgSafety   = "error state reached"
	msgLiveness = "hot state active at end"
)

// Option configures a Monitor.
type Option func(*options)

type options struct {
	printSteps  bool
	banner      bool
	stopOnError bool
	logger      *slog.Logger
	onViolation func(Violation)
}

// WithPrintSteps logs every event and the resulting soup at info level.
func WithPrintSteps(on bool) Option {
	return func(o *options) { o.printSteps = on }
}

// WithErrorBanner logs violations as a framed banner at error level.
func WithErrorBanner(on bool) Option {
	return func(o *options) { o.banner = on }
}

// WithStopOnError aborts verification at the first violation.
func WithStopOnError(on bool) Option {
	return func(o *options) { o.stopOnError = on }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithViolationHandler registers a callback invoked exactly once per
// violation, before any abort.
func WithViolationHandler(fn func(Violation)) Option {
	return func(o *options) { o.onViolation = fn }
}

type invariant struct {
	label string
	holds func() bool
}

// Monitor checks an event stream against a soup of states.
type Monitor[E any] struct {
	name       string
	opts       options
	initial    []State[E]
	states     *partitions[E]
	invariants []invariant
	children   []*Monitor[E]
	eventKey   func(E) (string, bool)

	errors  int
	step    int64
	aborted *AbortError
}

// New creates a monitor with an empty soup.
func New[E any](name string, opts ...Option) *Monitor[E] {
	m := &Monitor[E]{
		name:   name,
		states: newPartitions[E](),
	}
	for _, opt := range opts {
		opt(&m.opts)
	}
	if m.opts.logger == nil {
		m.opts.logger = slog.Default()
	}
	return m
}

// Name returns the monitor name.
func (m *Monitor[E]) Name() string { return m.name }

// AddInitial declares initial states and adds them to the soup.
func (m *Monitor[E]) AddInitial(states ...State[E]) {
	for _, st := range states {
		m.initial = append(m.initial, st)
		m.states.add(st)
	}
}

// Invariant registers a predicate checked after every event.
func (m *Monitor[E]) Invariant(label string, holds func() bool) {
	m.invariants = append(m.invariants, invariant{label: label, holds: holds})
}

// AddMonitors registers sub-monitors. They receive every event after this
// monitor, in registration order.
func (m *Monitor[E]) AddMonitors(children ...*Monitor[E]) {
	m.children = append(m.children, children...)
}

// Children returns the registered sub-monitors.
func (m *Monitor[E]) Children() []*Monitor[E] { return m.children }

// PartitionBy enables keyed partitioning. States implementing Partitioned
// are stored per key and only see events carrying that key or no key.
// Passing nil disables partitioning.
func (m *Monitor[E]) PartitionBy(key func(E) (string, bool)) {
	m.eventKey = key
	m.states.rebucket(key != nil)
}

// Verify advances the monitor by one event.
//
// The returned error is non-nil only when verification was aborted, by
// this call or an earlier one.
func (m *Monitor[E]) Verify(e E) error {
	if m.aborted != nil {
		return m.aborted
	}
	m.step++
	if m.opts.printSteps {
		m.opts.logger.Info("event", "monitor", m.name, "step", m.step, "event", e)
	}

	key, hasKey := "", false
	if m.eventKey != nil {
		key, hasKey = m.eventKey(e)
	}

	type firing struct {
		bucket *soup[E]
		state  State[E]
	}
	var fired []firing
	var added []State[E]

	for _, bucket := range m.states.scan(key, hasKey) {
		for _, st := range bucket.items {
			succ, ok := st.Step(e)
			if !ok {
				continue
			}
			fired = append(fired, firing{bucket: bucket, state: st})
			for _, target := range succ {
				if target == nil || IsOk(target) {
					continue
				}
				if msg, isErr := IsError(target); isErr {
					if msg == "" {
						msg = msgSafety
					}
					if err := m.report(Safety, msg, Describe(st)); err != nil {
						return err
					}
					continue
				}
				added = append(added, target)
			}
		}
	}

	removals := make(map[*soup[E]]map[any]struct{})
	for _, f := range fired {
		ids, ok := removals[f.bucket]
		if !ok {
			ids = make(map[any]struct{})
			removals[f.bucket] = ids
		}
		ids[identity(f.state)] = struct{}{}
	}
	for bucket, ids := range removals {
		bucket.removeAll(ids)
	}
	for _, st := range added {
		m.states.add(st)
	}
	m.states.compact()

	for _, inv := range m.invariants {
		if !inv.holds() {
			if err := m.report(Invariant, inv.label, ""); err != nil {
				return err
			}
		}
	}

	if m.opts.printSteps {
		m.opts.logger.Info("states", "monitor", m.name, "step", m.step, "soup", m.String())
	}

	for _, child := range m.children {
		if err := child.Verify(e); err != nil {
			m.abortWith(err)
			return err
		}
	}
	return nil
}

// End reports every non-final state as a liveness violation, then ends the
// sub-monitors. The soup is not cleared.
func (m *Monitor[E]) End() error {
	if m.aborted != nil {
		return m.aborted
	}
	for _, st := range m.states.snapshot() {
		if st.Final() {
			continue
		}
		if err := m.report(Liveness, msgLiveness, Describe(st)); err != nil {
			return err
		}
	}
	for _, child := range m.children {
		if err := child.End(); err != nil {
			m.abortWith(err)
			return err
		}
	}
	return nil
}

// ErrorCount returns the violations recorded by this monitor and all of its
// descendants.
func (m *Monitor[E]) ErrorCount() int {
	n := m.errors
	for _, child := range m.children {
		n += child.ErrorCount()
	}
	return n
}

// OwnErrorCount returns the violations recorded by this monitor alone.
func (m *Monitor[E]) OwnErrorCount() int { return m.errors }

// Steps returns the number of events verified.
func (m *Monitor[E]) Steps() int64 { return m.step }

// Aborted returns the abort error, if verification was stopped.
func (m *Monitor[E]) Aborted() error {
	if m.aborted == nil {
		return nil
	}
	return m.aborted
}

// Reset restores the initial soup and clears counters, recursively.
func (m *Monitor[E]) Reset() {
	m.states.clear()
	for _, st := range m.initial {
		if r, ok := st.(interface{ reset() }); ok {
			r.reset()
		}
		m.states.add(st)
	}
	m.errors = 0
	m.step = 0
	m.aborted = nil
	for _, child := range m.children {
		child.Reset()
	}
}

// Exists reports whether some active state satisfies pred.
func (m *Monitor[E]) Exists(pred func(State[E]) bool) bool {
	for _, st := range m.states.snapshot() {
		if pred(st) {
			return true
		}
	}
	return false
}

// Find applies fn to every active state it is defined for and returns the
// union of the results. If fn is defined for no state, orElse decides.
func (m *Monitor[E]) Find(fn func(State[E]) ([]State[E], bool), orElse func() []State[E]) []State[E] {
	var out []State[E]
	matched := false
	for _, st := range m.states.snapshot() {
		succ, ok := fn(st)
		if !ok {
			continue
		}
		matched = true
		out = append(out, succ...)
	}
	if !matched {
		if orElse == nil {
			return nil
		}
		return orElse()
	}
	return out
}

// Contains reports whether a state equal to st is active.
func (m *Monitor[E]) Contains(st State[E]) bool {
	return m.states.contains(st)
}

// States returns a snapshot of the active states.
func (m *Monitor[E]) States() []State[E] {
	return m.states.snapshot()
}

// Len returns the number of active states.
func (m *Monitor[E]) Len() int {
	return m.states.len()
}

func (m *Monitor[E]) String() string {
	states := m.states.snapshot()
	parts := make([]string, len(states))
	for i, st := range states {
		parts[i] = Describe(st)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// report records a violation and applies the error policy.
func (m *Monitor[E]) report(kind ViolationKind, msg, state string) error {
	m.errors++
	v := Violation{
		Kind:    kind,
		Monitor: m.name,
		Message: msg,
		State:   state,
		Step:    m.step,
	}

	if m.opts.banner {
		m.opts.logger.Error(banner(v))
	} else {
		m.opts.logger.Warn("violation",
			"monitor", v.Monitor,
			"kind", string(v.Kind),
			"message", v.Message,
			"state", v.State,
			"step", v.Step,
		)
	}

	if m.opts.onViolation != nil {
		m.opts.onViolation(v)
	}

	if m.opts.stopOnError {
		m.aborted = &AbortError{Violation: v}
		return m.aborted
	}
	return nil
}

func (m *Monitor[E]) abortWith(err error) {
	var ae *AbortError
	if errors.As(err, &ae) {
		m.aborted = ae
	}
}

func banner(v Violation) string {
	line := strings.Repeat("*", 60)
	return fmt.Sprintf("\n%s\n*** %s violation in %s\n*** %s\n%s", line, strings.ToUpper(string(v.Kind)), v.Monitor, v, line)
}
