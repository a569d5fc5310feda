package ir

// Event is one observation of the monitored system.
type Event struct {
	Name string `json:"name"`
	Args Object `json:"args,omitempty"`
	Seq  int64  `json:"seq,omitempty"` // logical clock, stamped by the engine
}

// Arg returns the named argument.
func (e Event) Arg(name string) (Value, bool) {
	v, ok := e.Args[name]
	return v, ok
}

func (e Event) String() string {
	return FormatArgs(e.Name, e.Args)
}

// MonitorSpec is a compiled declarative monitor.
type MonitorSpec struct {
	Name        string          `json:"name"`
	Scope       ScopeSpec       `json:"scope"`
	StopOnError bool            `json:"stop_on_error,omitempty"`
	PrintSteps  bool            `json:"print_steps,omitempty"`
	Initial     []string        `json:"initial"`
	States      []StateSpec     `json:"states"`
	Durings     []DuringSpec    `json:"durings,omitempty"`
	Invariants  []InvariantSpec `json:"invariants,omitempty"`
	Monitors    []string        `json:"monitors,omitempty"` // child monitor names
	Examples    []Example       `json:"examples,omitempty"`
}

// State returns the named state spec.
func (m *MonitorSpec) State(name string) (*StateSpec, bool) {
	for i := range m.States {
		if m.States[i].Name == name {
			return &m.States[i], true
		}
	}
	return nil, false
}

// ScopeSpec selects how a monitor partitions its soup.
type ScopeSpec struct {
	Mode string `json:"mode"`          // "global" or "keyed"
	Key  string `json:"key,omitempty"` // event argument for keyed mode
}

// Scope modes.
const (
	ScopeGlobal = "global"
	ScopeKeyed  = "keyed"
)

// ValidScopeModes lists allowed scope modes.
var ValidScopeModes = map[string]bool{
	ScopeGlobal: true,
	ScopeKeyed:  true,
}

// StateSpec is a declared state. Every instance of it in a soup is a fact
// named Name with one argument per param.
type StateSpec struct {
	Name   string           `json:"name"`
	Kind   string           `json:"kind"`
	Params []string         `json:"params,omitempty"`
	Key    string           `json:"key,omitempty"` // param holding the partition key
	On     []TransitionSpec `json:"on,omitempty"`
	Watch  []TransitionSpec `json:"watch,omitempty"` // side table of unless/until
}

// TransitionSpec is one case of a transition table. Cases are tried in
// declaration order and the first applicable one wins.
//
// Templates in Match, Args and fact patterns are either literals or
// "bound.x" references to a bound variable. A state's params are bound
// before the case is tried.
type TransitionSpec struct {
	Event      string            `json:"event"`
	Bind       map[string]string `json:"bind,omitempty"`        // variable -> event argument
	Match      Object            `json:"match,omitempty"`       // event argument -> template
	If         []FactPattern     `json:"if,omitempty"`          // each must match some fact
	UnlessFact []FactPattern     `json:"unless_fact,omitempty"` // none may match
	Find       *FindSpec         `json:"find,omitempty"`
	Goto       []TargetSpec      `json:"goto"`
	Message    string            `json:"message,omitempty"` // for error targets
}

// FactPattern selects facts by name and field values.
type FactPattern struct {
	Fact  string `json:"fact"`
	Where Object `json:"where,omitempty"` // field -> template
}

// FindSpec runs Goto once per matching fact, with Bind extending the
// bindings from that fact. When no fact matches, Else is used instead.
type FindSpec struct {
	FactPattern
	Bind map[string]string `json:"bind,omitempty"` // variable -> fact field
	Else []TargetSpec      `json:"else"`
}

// TargetSpec is a successor: "ok", "error" or a state name.
type TargetSpec struct {
	State string `json:"state"`
	Args  Object `json:"args,omitempty"` // param -> template
}

// Sentinel target names.
const (
	TargetOk    = "ok"
	TargetError = "error"
)

// DuringSpec is an interval fact toggled by begin and end events.
type DuringSpec struct {
	Name  string         `json:"name"`
	Begin []EventPattern `json:"begin"`
	End   []EventPattern `json:"end"`
}

// EventPattern matches an event by name and literal argument values.
type EventPattern struct {
	Event string `json:"event"`
	Match Object `json:"match,omitempty"`
}

// InvariantSpec counts facts matching a pattern after every event.
type InvariantSpec struct {
	FactPattern
	Label  string `json:"label"`
	Min    *int64 `json:"min,omitempty"`
	Max    *int64 `json:"max,omitempty"`
	During string `json:"during,omitempty"` // only checked while this interval is on
}

// Example links a monitor to a scenario file that exercises it.
type Example struct {
	Description string `json:"description"`
	Scenario    string `json:"scenario,omitempty"`
}

// Run is the header of a recorded verification run.
type Run struct {
	ID            string `json:"id"`
	SpecHash      string `json:"spec_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
	Status        string `json:"status"` // "running", "ended" or "aborted"
	Events        int64  `json:"events"`
	Errors        int64  `json:"errors"`
}

// Run statuses.
const (
	RunRunning = "running"
	RunEnded   = "ended"
	RunAborted = "aborted"
)

// Violation is a recorded monitor violation.
type Violation struct {
	ID      string `json:"id"`
	RunID   string `json:"run_id"`
	Monitor string `json:"monitor"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
	Step    int64  `json:"step"`
	Seq     int64  `json:"seq"` // seq of the offending event, 0 at end of run
	Index   int64  `json:"index"` // position among the violations of the same seq
}

// Fact is an active declarative state captured in a snapshot.
type Fact struct {
	Key     string `json:"key"`
	Monitor string `json:"monitor"`
	Name    string `json:"name"`
	Args    Object `json:"args"`
	Hot     bool   `json:"hot,omitempty"` // non-final
}
