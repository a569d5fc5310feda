package monitor

import "fmt"

// Kind selects the temporal operator a Behavior implements.
type Kind int

const (
	// KindWatch fires once on the first applicable event. Final.
	KindWatch Kind = iota + 1
	// KindAlways fires on every applicable event and stays active. Final.
	KindAlways
	// KindHot is like KindWatch but must fire before End. Non-final.
	KindHot
	// KindNext must fire on the very next event. Non-final.
	KindNext
	// KindWeakNext must fire on the next event if there is one. Final.
	KindWeakNext
	// KindUnless waits for the escape table while the side table may fire
	// repeatedly. Final.
	KindUnless
	// KindUntil is KindUnless where the escape must eventually happen.
	// Non-final.
	KindUntil
)

var kindNames = map[Kind]string{
	KindWatch:    "watch",
	KindAlways:   "always",
	KindHot:      "hot",
	KindNext:     "next",
	KindWeakNext: "wnext",
	KindUnless:   "unless",
	KindUntil:    "until",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps an operator name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "watch":
		return KindWatch, nil
	case "always":
		return KindAlways, nil
	case "hot":
		return KindHot, nil
	case "next":
		return KindNext, nil
	case "wnext":
		return KindWeakNext, nil
	case "unless":
		return KindUnless, nil
	case "until":
		return KindUntil, nil
	}
	return 0, fmt.Errorf("unknown state kind %q: must be watch, always, hot, next, wnext, unless, or until", name)
}

// Final reports whether states of this kind may remain active at End.
func (k Kind) Final() bool {
	switch k {
	case KindHot, KindNext, KindUntil:
		return false
	default:
		return true
	}
}

// TwoTables reports whether the kind uses a side table.
func (k Kind) TwoTables() bool {
	return k == KindUnless || k == KindUntil
}

// Table is a partial transition function. It returns false when it is not
// defined for the event.
type Table[E any] func(e E) ([]State[E], bool)

// Case is one entry of a first-match transition table.
type Case[E any] struct {
	When func(E) bool
	Then func(E) []State[E]
}

// Cases builds a Table that tries cases in declaration order; the first
// case whose When holds decides the result.
func Cases[E any](cases ...Case[E]) Table[E] {
	return func(e E) ([]State[E], bool) {
		for _, c := range cases {
			if c.When(e) {
				return c.Then(e), true
			}
		}
		return nil, false
	}
}

// OrElse tries t first and falls back to other when t is not defined.
func (t Table[E]) OrElse(other Table[E]) Table[E] {
	return func(e E) ([]State[E], bool) {
		if succ, ok := t.apply(e); ok {
			return succ, true
		}
		return other.apply(e)
	}
}

func (t Table[E]) apply(e E) ([]State[E], bool) {
	if t == nil {
		return nil, false
	}
	return t(e)
}

// Behavior is the transition logic of a temporal operator. Data-carrying
// states embed one and pass themselves as self, so that self-looping
// operators re-add the fact with its own identity:
//
//	func (l Locked) Step(e Event) ([]monitor.State[Event], bool) {
//		return l.behavior().Step(l, e)
//	}
type Behavior[E any] struct {
	Kind    Kind
	Primary Table[E]
	Side    Table[E]
}

// Final reports the finality of the operator.
func (b Behavior[E]) Final() bool {
	return b.Kind.Final()
}

// Step applies the operator to e on behalf of self.
func (b Behavior[E]) Step(self State[E], e E) ([]State[E], bool) {
	switch b.Kind {
	case KindWatch, KindHot:
		return b.Primary.apply(e)

	case KindAlways:
		succ, ok := b.Primary.apply(e)
		if !ok {
			return nil, false
		}
		return withSelf(succ, self), true

	case KindNext, KindWeakNext:
		if succ, ok := b.Primary.apply(e); ok {
			return succ, true
		}
		return []State[E]{Failf[E]("%s: event not accepted", b.Kind)}, true

	case KindUnless, KindUntil:
		if succ, ok := b.Primary.apply(e); ok {
			return succ, true
		}
		succ, ok := b.Side.apply(e)
		if !ok {
			return nil, false
		}
		return withSelf(succ, self), true

	default:
		panic(fmt.Sprintf("monitor: invalid behavior kind %v", b.Kind))
	}
}

func withSelf[E any](succ []State[E], self State[E]) []State[E] {
	out := make([]State[E], 0, len(succ)+1)
	out = append(out, succ...)
	return append(out, self)
}

// Op is an anonymous operator-built state, identified by pointer.
type Op[E any] struct {
	b    Behavior[E]
	name string
}

func newOp[E any](kind Kind, primary, side Table[E]) *Op[E] {
	if primary == nil {
		panic("monitor: nil transition table")
	}
	if kind.TwoTables() && side == nil {
		panic("monitor: nil side table")
	}
	return &Op[E]{b: Behavior[E]{Kind: kind, Primary: primary, Side: side}}
}

// Watch waits for one of ts's events and is then done with this branch.
func Watch[E any](ts Table[E]) *Op[E] { return newOp(KindWatch, ts, nil) }

// Always fires ts on every applicable event and keeps itself active.
func Always[E any](ts Table[E]) *Op[E] { return newOp(KindAlways, ts, nil) }

// Hot is an outstanding obligation: ts must fire before End.
func Hot[E any](ts Table[E]) *Op[E] { return newOp(KindHot, ts, nil) }

// Next requires ts to fire on the very next event.
func Next[E any](ts Table[E]) *Op[E] { return newOp(KindNext, ts, nil) }

// WeakNext requires ts to fire on the next event, if one arrives.
func WeakNext[E any](ts Table[E]) *Op[E] { return newOp(KindWeakNext, ts, nil) }

// Unless waits for escape; until then side may fire repeatedly.
func Unless[E any](escape, side Table[E]) *Op[E] { return newOp(KindUnless, escape, side) }

// Until is Unless where the escape must happen before End.
func Until[E any](escape, side Table[E]) *Op[E] { return newOp(KindUntil, escape, side) }

// Named sets the name used in logs and violation reports.
func (o *Op[E]) Named(name string) *Op[E] {
	o.name = name
	return o
}

// Step implements State.
func (o *Op[E]) Step(e E) ([]State[E], bool) { return o.b.Step(o, e) }

// Final implements State.
func (o *Op[E]) Final() bool { return o.b.Final() }

// Kind returns the operator kind.
func (o *Op[E]) Kind() Kind { return o.b.Kind }

func (o *Op[E]) String() string {
	if o.name != "" {
		return o.name
	}
	return o.b.Kind.String()
}
