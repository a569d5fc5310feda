package monitor

import "slices"

// During tracks whether the trace is between a begin event and an end
// event. It is an always-state: it fires only on begin/end events and
// never leaves the soup on its own.
type During[E any] struct {
	name  string
	begin func(E) bool
	end   func(E) bool
	on    bool
}

// NewDuring creates an interval fact toggled by membership of the event in
// begin and end, and registers it as an initial state of m.
func NewDuring[E comparable](m *Monitor[E], begin, end []E) *During[E] {
	return NewDuringFunc(m,
		func(e E) bool { return slices.Contains(begin, e) },
		func(e E) bool { return slices.Contains(end, e) },
	)
}

// NewDuringFunc is NewDuring with predicates in place of event sets.
func NewDuringFunc[E any](m *Monitor[E], begin, end func(E) bool) *During[E] {
	d := &During[E]{begin: begin, end: end}
	if m != nil {
		m.AddInitial(d)
	}
	return d
}

// Named sets the name used in logs.
func (d *During[E]) Named(name string) *During[E] {
	d.name = name
	return d
}

// Name returns the name set by Named.
func (d *During[E]) Name() string { return d.name }

// Step implements State. Begin wins when an event is in both sets.
func (d *During[E]) Step(e E) ([]State[E], bool) {
	switch {
	case d.begin(e):
		d.on = true
	case d.end(e):
		d.on = false
	default:
		return nil, false
	}
	return []State[E]{d}, true
}

// Final implements State.
func (d *During[E]) Final() bool { return true }

// On reports whether the interval is open.
func (d *During[E]) On() bool { return d.on }

// Implies returns cond while the interval is open and true otherwise.
func (d *During[E]) Implies(cond bool) bool {
	return !d.on || cond
}

func (d *During[E]) reset() { d.on = false }

func (d *During[E]) String() string {
	name := d.name
	if name == "" {
		name = "during"
	}
	if d.on {
		return name + "(on)"
	}
	return name + "(off)"
}
