package monitor

import "fmt"

// State is a member of a monitor's state soup.
//
// Step returns (nil, false) when the event does not apply to the state; the
// state then stays active unchanged. Otherwise it returns the successor
// set, which may contain the Ok and Error sentinels. A firing state is
// always removed from the soup; it survives only if it is itself among its
// successors.
//
// States must be comparable (struct values compare by field, pointers by
// identity) or implement Keyed.
type State[E any] interface {
	Step(e E) ([]State[E], bool)
	Final() bool
}

// Keyed states are identified in the soup by StateKey instead of by their
// dynamic value. Declarative facts use a content hash here.
type Keyed interface {
	StateKey() string
}

// Partitioned states belong to the bucket named by PartitionKey when the
// monitor partitions its soup by event key. A state's partition key must not
// change after creation.
type Partitioned interface {
	PartitionKey() (string, bool)
}

// Immediate states must see the very next event whatever its key, as next
// and wnext states do. They stay in the global bucket even when they are
// Partitioned.
type Immediate interface {
	Immediate() bool
}

// keyedID keeps keyed identities apart from states that are strings.
type keyedID string

// identity returns the soup identity of a state.
func identity[E any](s State[E]) any {
	if k, ok := s.(Keyed); ok {
		return keyedID(k.StateKey())
	}
	return s
}

type okState[E any] struct{}

func (okState[E]) Step(E) ([]State[E], bool) { return nil, false }
func (okState[E]) Final() bool               { return true }
func (okState[E]) String() string            { return "ok" }

type errorState[E any] struct {
	msg string
}

func (errorState[E]) Step(E) ([]State[E], bool) { return nil, false }
func (errorState[E]) Final() bool               { return true }

func (s errorState[E]) String() string {
	if s.msg == "" {
		return "error"
	}
	return "error: " + s.msg
}

// Ok returns the success sentinel.
func Ok[E any]() State[E] { return okState[E]{} }

// Error returns the failure sentinel.
func Error[E any]() State[E] { return errorState[E]{} }

// Fail returns a failure sentinel carrying a message for the violation report.
func Fail[E any](msg string) State[E] { return errorState[E]{msg: msg} }

// Failf is Fail with formatting.
func Failf[E any](format string, args ...any) State[E] {
	return errorState[E]{msg: fmt.Sprintf(format, args...)}
}

// Ensure returns Ok if cond holds and Error otherwise.
func Ensure[E any](cond bool) State[E] {
	if cond {
		return Ok[E]()
	}
	return Error[E]()
}

// Check is Ensure with a message attached to the failure.
func Check[E any](cond bool, msg string) State[E] {
	if cond {
		return Ok[E]()
	}
	return Fail[E](msg)
}

// Lift collects states into a successor set.
func Lift[E any](states ...State[E]) []State[E] {
	return states
}

// IsOk reports whether s is the Ok sentinel.
func IsOk[E any](s State[E]) bool {
	_, ok := s.(okState[E])
	return ok
}

// IsError reports whether s is an Error sentinel and returns its message.
func IsError[E any](s State[E]) (string, bool) {
	es, ok := s.(errorState[E])
	return es.msg, ok
}

// Describe renders a state for logs and violation reports.
func Describe[E any](s State[E]) string {
	if s == nil {
		return "<nil>"
	}
	if str, ok := s.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T%+v", s, s)
}
