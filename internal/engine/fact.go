package engine

import (
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/queryir"
)

// stateDef is a declared state compiled for one monitor instance.
type stateDef struct {
	inst  *instance
	spec  *ir.StateSpec
	kind  monitor.Kind
	on    []*transition
	watch []*transition
}

// fact is an instance of a declared state in the soup. Two facts with the
// same name and args are the same state.
type fact struct {
	def  *stateDef
	args ir.Object
	key  string
}

func (d *stateDef) newFact(args ir.Object) (*fact, error) {
	if args == nil {
		args = ir.Object{}
	}
	key, err := ir.FactKey(d.spec.Name, args)
	if err != nil {
		return nil, err
	}
	return &fact{def: d, args: args, key: key}, nil
}

// Step implements monitor.State. The state's params are the initial
// bindings of every case.
func (f *fact) Step(e ir.Event) ([]monitor.State[ir.Event], bool) {
	b := monitor.Behavior[ir.Event]{
		Kind:    f.def.kind,
		Primary: f.table(f.def.on),
		Side:    f.table(f.def.watch),
	}
	return b.Step(f, e)
}

// Final implements monitor.State.
func (f *fact) Final() bool { return f.def.kind.Final() }

// StateKey implements monitor.Keyed.
func (f *fact) StateKey() string { return f.key }

// PartitionKey implements monitor.Partitioned.
func (f *fact) PartitionKey() (string, bool) {
	if f.def.spec.Key == "" {
		return "", false
	}
	v, ok := f.args[f.def.spec.Key]
	if !ok {
		return "", false
	}
	return ir.Format(v), true
}

// Name returns the declared state name.
func (f *fact) Name() string { return f.def.spec.Name }

// Args returns the fact's arguments.
func (f *fact) Args() ir.Object { return f.args }

func (f *fact) String() string {
	return ir.FormatArgs(f.def.spec.Name, f.args)
}

// table turns a transition list into a first-match table.
func (f *fact) table(ts []*transition) monitor.Table[ir.Event] {
	if len(ts) == 0 {
		return nil
	}
	return func(e ir.Event) ([]monitor.State[ir.Event], bool) {
		for _, t := range ts {
			if succ, ok := t.fire(f, e); ok {
				return succ, true
			}
		}
		return nil, false
	}
}

// transition is a compiled transition case.
type transition struct {
	spec   ir.TransitionSpec
	ifs    []queryir.Select
	unless []queryir.Select
	find   *queryir.Select
}

func compileTransition(spec ir.TransitionSpec) *transition {
	t := &transition{spec: spec}
	for _, p := range spec.If {
		t.ifs = append(t.ifs, queryir.FromPattern(p, nil))
	}
	for _, p := range spec.UnlessFact {
		t.unless = append(t.unless, queryir.FromPattern(p, nil))
	}
	if spec.Find != nil {
		// FindSpec binds variable -> field, queries bind field -> variable.
		fields := make(map[string]string, len(spec.Find.Bind))
		for variable, field := range spec.Find.Bind {
			fields[field] = variable
		}
		sel := queryir.FromPattern(spec.Find.FactPattern, fields)
		t.find = &sel
	}
	return t
}

// fire applies the case to e on behalf of f. Cases are evaluated in order:
// event name, bind, match, if, unless_fact, find. A case whose find
// matches nothing and has no else does not apply.
//
// Evaluation errors become error successors, so they surface as safety
// violations of the monitor instead of being dropped.
func (t *transition) fire(f *fact, e ir.Event) ([]monitor.State[ir.Event], bool) {
	if e.Name != t.spec.Event {
		return nil, false
	}

	bound, ok := extractBindings(t.spec.Bind, e, f.args)
	if !ok {
		return nil, false
	}

	matched, err := matchArgs(t.spec.Match, e, bound)
	if err != nil {
		return t.failed(err), true
	}
	if !matched {
		return nil, false
	}

	var rows []queryir.Row
	if len(t.ifs) > 0 || len(t.unless) > 0 || t.find != nil {
		rows = f.def.inst.rows()
	}

	for _, sel := range t.ifs {
		n, err := queryir.Count(sel, rows, bound)
		if err != nil {
			return t.failed(err), true
		}
		if n == 0 {
			return nil, false
		}
	}
	for _, sel := range t.unless {
		n, err := queryir.Count(sel, rows, bound)
		if err != nil {
			return t.failed(err), true
		}
		if n > 0 {
			return nil, false
		}
	}

	if t.find == nil {
		return f.def.inst.successors(t.spec.Goto, bound, t.spec.Message), true
	}

	found, err := queryir.Eval(*t.find, rows, bound)
	if err != nil {
		return t.failed(err), true
	}
	if len(found) == 0 {
		if len(t.spec.Find.Else) == 0 {
			return nil, false
		}
		return f.def.inst.successors(t.spec.Find.Else, bound, t.spec.Message), true
	}

	var out []monitor.State[ir.Event]
	for _, b := range found {
		merged := bound.Clone()
		for k, v := range b {
			merged[k] = v
		}
		out = append(out, f.def.inst.successors(t.spec.Goto, merged, t.spec.Message)...)
	}
	return out, true
}

func (t *transition) failed(err error) []monitor.State[ir.Event] {
	return []monitor.State[ir.Event]{monitor.Failf[ir.Event]("on %s: %v", t.spec.Event, err)}
}

// successors resolves goto targets against the bindings. A target that
// cannot be built becomes an error successor naming the state.
func (inst *instance) successors(targets []ir.TargetSpec, bound ir.Object, message string) []monitor.State[ir.Event] {
	out := make([]monitor.State[ir.Event], 0, len(targets))
	for _, target := range targets {
		switch target.State {
		case ir.TargetOk:
			out = append(out, monitor.Ok[ir.Event]())
		case ir.TargetError:
			if message == "" {
				out = append(out, monitor.Error[ir.Event]())
			} else {
				out = append(out, monitor.Fail[ir.Event](message))
			}
		default:
			st, err := inst.instantiate(target.State, target.Args, bound)
			if err != nil {
				out = append(out, monitor.Fail[ir.Event](err.Error()))
				continue
			}
			out = append(out, st)
		}
	}
	return out
}

// instantiate builds a fact of the named state.
func (inst *instance) instantiate(name string, args, bound ir.Object) (*fact, error) {
	def, ok := inst.states[name]
	if !ok {
		return nil, fmt.Errorf("unknown state %q", name)
	}
	resolved, err := resolveArgs(def.spec.Params, args, bound)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return def.newFact(resolved)
}
