package engine

import (
	"fmt"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/queryir"
)

// RootName is the name of the monitor Build places above the top-level
// monitors of a spec set.
const RootName = "tracemon"

// instance is one monitor built from a spec.
type instance struct {
	spec    *ir.MonitorSpec
	mon     *monitor.Monitor[ir.Event]
	states  map[string]*stateDef
	durings map[string]*monitor.During[ir.Event]
}

// Runtime is a built spec set: a root monitor over the top-level monitors,
// with the instances indexed by name for fact queries.
type Runtime struct {
	Root      *monitor.Monitor[ir.Event]
	instances []*instance // declaration order
	byName    map[string]*instance
}

// Build validates a spec set and instantiates its monitor tree. opts apply
// to every monitor after the spec's own stop_on_error and print_steps, so
// callers can override them.
func Build(specs []ir.MonitorSpec, opts ...monitor.Option) (*Runtime, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("build: no monitors")
	}
	if errs := compiler.ValidateSet(specs); len(errs) > 0 {
		return nil, fmt.Errorf("build: %w", &compiler.SetError{Errors: errs})
	}

	rt := &Runtime{
		Root:   monitor.New[ir.Event](RootName, opts...),
		byName: make(map[string]*instance, len(specs)),
	}

	for i := range specs {
		inst, err := buildInstance(&specs[i], opts)
		if err != nil {
			return nil, fmt.Errorf("build monitor %s: %w", specs[i].Name, err)
		}
		rt.instances = append(rt.instances, inst)
		rt.byName[inst.spec.Name] = inst
	}

	for _, inst := range rt.instances {
		for _, child := range inst.spec.Monitors {
			inst.mon.AddMonitors(rt.byName[child].mon)
		}
	}
	for _, name := range compiler.Roots(specs) {
		rt.Root.AddMonitors(rt.byName[name].mon)
	}
	return rt, nil
}

func buildInstance(spec *ir.MonitorSpec, opts []monitor.Option) (*instance, error) {
	monOpts := append([]monitor.Option{
		monitor.WithStopOnError(spec.StopOnError),
		monitor.WithPrintSteps(spec.PrintSteps),
	}, opts...)

	inst := &instance{
		spec:    spec,
		mon:     monitor.New[ir.Event](spec.Name, monOpts...),
		states:  make(map[string]*stateDef, len(spec.States)),
		durings: make(map[string]*monitor.During[ir.Event], len(spec.Durings)),
	}

	for i := range spec.States {
		st := &spec.States[i]
		kind, err := monitor.ParseKind(st.Kind)
		if err != nil {
			return nil, err
		}
		def := &stateDef{inst: inst, spec: st, kind: kind}
		for _, tr := range st.On {
			def.on = append(def.on, compileTransition(tr))
		}
		for _, tr := range st.Watch {
			def.watch = append(def.watch, compileTransition(tr))
		}
		inst.states[st.Name] = def
	}

	if spec.Scope.Mode == ir.ScopeKeyed {
		inst.mon.PartitionBy(eventKey(spec.Scope.Key))
	}

	for _, name := range spec.Initial {
		def := inst.states[name]
		if len(def.spec.Params) > 0 {
			return nil, fmt.Errorf("initial state %s has params %v", name, def.spec.Params)
		}
		f, err := def.newFact(nil)
		if err != nil {
			return nil, err
		}
		inst.mon.AddInitial(f)
	}

	for _, d := range spec.Durings {
		begin := func(e ir.Event) bool { return matchAny(d.Begin, e) }
		end := func(e ir.Event) bool { return matchAny(d.End, e) }
		inst.durings[d.Name] = monitor.NewDuringFunc(inst.mon, begin, end).Named(d.Name)
	}

	for _, inv := range spec.Invariants {
		inst.mon.Invariant(inv.Label, inst.invariant(inv))
	}

	return inst, nil
}

// eventKey partitions a keyed monitor by one event argument. Values are
// rendered with ir.Format, the same rendering facts use for their key
// param.
func eventKey(arg string) func(ir.Event) (string, bool) {
	return func(e ir.Event) (string, bool) {
		v, ok := e.Args[arg]
		if !ok {
			return "", false
		}
		return ir.Format(v), true
	}
}

func matchAny(patterns []ir.EventPattern, e ir.Event) bool {
	for _, p := range patterns {
		if matchEventPattern(p, e) {
			return true
		}
	}
	return false
}

// invariant counts the facts matching the pattern after every event and
// checks the bounds, only while the during is on when one is named.
func (inst *instance) invariant(spec ir.InvariantSpec) func() bool {
	sel := queryir.FromPattern(spec.FactPattern, nil)
	during := inst.durings[spec.During]
	return func() bool {
		n, err := queryir.Count(sel, inst.rows(), nil)
		if err != nil {
			return false
		}
		holds := (spec.Min == nil || int64(n) >= *spec.Min) &&
			(spec.Max == nil || int64(n) <= *spec.Max)
		if during != nil {
			return during.Implies(holds)
		}
		return holds
	}
}

// rows lists the queryable facts of the soup: every declared state
// instance, and every during that is on.
func (inst *instance) rows() []queryir.Row {
	states := inst.mon.States()
	rows := make([]queryir.Row, 0, len(states))
	for _, st := range states {
		switch s := st.(type) {
		case *fact:
			rows = append(rows, queryir.Row{Name: s.Name(), Fields: s.args})
		case *monitor.During[ir.Event]:
			if s.On() {
				rows = append(rows, queryir.Row{Name: s.Name(), Fields: ir.Object{}})
			}
		}
	}
	return rows
}

// facts snapshots the soup as ir.Facts.
func (inst *instance) facts() []ir.Fact {
	var out []ir.Fact
	for _, st := range inst.mon.States() {
		switch s := st.(type) {
		case *fact:
			out = append(out, ir.Fact{
				Key:     s.key,
				Monitor: inst.spec.Name,
				Name:    s.Name(),
				Args:    s.args,
				Hot:     !s.Final(),
			})
		case *monitor.During[ir.Event]:
			if s.On() {
				out = append(out, ir.Fact{
					Key:     ir.MustFactKey(s.Name(), ir.Object{}),
					Monitor: inst.spec.Name,
					Name:    s.Name(),
					Args:    ir.Object{},
				})
			}
		}
	}
	return out
}

// Monitor returns the built monitor with the given name.
func (rt *Runtime) Monitor(name string) (*monitor.Monitor[ir.Event], bool) {
	inst, ok := rt.byName[name]
	if !ok {
		return nil, false
	}
	return inst.mon, true
}

// Names returns the monitor names in declaration order.
func (rt *Runtime) Names() []string {
	names := make([]string, len(rt.instances))
	for i, inst := range rt.instances {
		names[i] = inst.spec.Name
	}
	return names
}

// Facts snapshots the active facts of every monitor, in declaration order
// and soup order within a monitor.
func (rt *Runtime) Facts() []ir.Fact {
	var out []ir.Fact
	for _, inst := range rt.instances {
		out = append(out, inst.facts()...)
	}
	return out
}

// States returns the total soup size over all monitors.
func (rt *Runtime) States() int {
	n := 0
	for _, inst := range rt.instances {
		n += inst.mon.Len()
	}
	return n
}

// QueryFacts evaluates a fact pattern against one monitor's live soup.
func (rt *Runtime) QueryFacts(monitorName string, p ir.FactPattern) ([]ir.Object, error) {
	inst, ok := rt.byName[monitorName]
	if !ok {
		return nil, fmt.Errorf("unknown monitor %q", monitorName)
	}
	var out []ir.Object
	for _, row := range inst.rows() {
		if row.Name != p.Fact {
			continue
		}
		ok, err := queryir.Matches(queryir.FromPattern(p, nil).Filter, row.Fields, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row.Fields)
		}
	}
	return out, nil
}

// DuringOn reports whether a monitor's during is on. ok is false when the
// monitor or during does not exist.
func (rt *Runtime) DuringOn(monitorName, during string) (on, ok bool) {
	inst, found := rt.byName[monitorName]
	if !found {
		return false, false
	}
	d, found := inst.durings[during]
	if !found {
		return false, false
	}
	return d.On(), true
}

// Reset restores every monitor's initial soup and counters.
func (rt *Runtime) Reset() {
	rt.Root.Reset()
}
