package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// MonitorSpec errors (E101-E109)
	ErrMonitorNoStates   = "E101" // at least one state required
	ErrInvalidKind       = "E102" // unknown state kind
	ErrDuplicateName     = "E103" // duplicate state/during/param name
	ErrFloatForbidden    = "E104" // float values not allowed
	ErrUnknownTarget     = "E105" // goto/initial names an undeclared state
	ErrInvalidTargetArgs = "E106" // target args do not fit the state params
	ErrInvalidStateKey   = "E107" // key is not a param
	ErrInvalidWatchTable = "E108" // watch table on a kind without one
	ErrInvalidTransition = "E109" // transition missing event or targets

	// Scope, facts and hierarchy errors (E110-E119)
	ErrInvalidScopeMode       = "E111" // invalid scope mode or missing keyed key
	ErrInvalidFactPattern     = "E112" // pattern names an unknown fact or field
	ErrInvalidInvariant       = "E113" // invariant bounds or during invalid
	ErrUndefinedBoundVariable = "E114" // bound variable not defined
	ErrUnknownChild           = "E115" // monitors lists an undeclared monitor
	ErrHierarchyCycle         = "E116" // monitor hierarchy contains a cycle
	ErrSharedChild            = "E117" // monitor listed as child of several parents
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled monitor against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.MonitorSpec:
		return validateMonitorSpec(spec)
	case ir.MonitorSpec:
		return validateMonitorSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// ValidateSet validates every monitor and the hierarchy between them.
func ValidateSet(specs []ir.MonitorSpec) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool, len(specs))
	for i := range specs {
		if names[specs[i].Name] {
			errs = append(errs, ValidationError{
				Field:   "monitor." + specs[i].Name,
				Message: fmt.Sprintf("duplicate monitor name: %q", specs[i].Name),
				Code:    ErrDuplicateName,
			})
		}
		names[specs[i].Name] = true
		for _, e := range validateMonitorSpec(&specs[i]) {
			e.Field = "monitor." + specs[i].Name + "." + e.Field
			errs = append(errs, e)
		}
	}
	return append(errs, AnalyzeHierarchy(specs)...)
}

// validateMonitorSpec validates one monitor specification.
func validateMonitorSpec(spec *ir.MonitorSpec) []ValidationError {
	var errs []ValidationError

	// E101: at least one state
	if len(spec.States) == 0 {
		errs = append(errs, ValidationError{
			Field:   "states",
			Message: "at least one state is required",
			Code:    ErrMonitorNoStates,
		})
	}

	// E111: scope
	if !ir.ValidScopeModes[spec.Scope.Mode] {
		errs = append(errs, ValidationError{
			Field:   "scope.mode",
			Message: fmt.Sprintf("invalid scope mode %q, must be \"global\" or \"keyed\"", spec.Scope.Mode),
			Code:    ErrInvalidScopeMode,
		})
	}
	if spec.Scope.Mode == ir.ScopeKeyed && strings.TrimSpace(spec.Scope.Key) == "" {
		errs = append(errs, ValidationError{
			Field:   "scope.key",
			Message: "keyed scope requires a non-empty key field",
			Code:    ErrInvalidScopeMode,
		})
	}

	facts := factSchema(spec)
	for i := range spec.Durings {
		if _, dup := spec.State(spec.Durings[i].Name); dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("durings[%d]", i),
				Message: fmt.Sprintf("during %q shares its name with a state", spec.Durings[i].Name),
				Code:    ErrDuplicateName,
			})
		}
	}

	// E103: duplicate state names
	seen := make(map[string]bool)
	for i := range spec.States {
		st := &spec.States[i]
		if seen[st.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d].name", i),
				Message: fmt.Sprintf("duplicate state name: %q", st.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[st.Name] = true
		if st.Name == ir.TargetOk || st.Name == ir.TargetError {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d].name", i),
				Message: fmt.Sprintf("%q is reserved", st.Name),
				Code:    ErrDuplicateName,
			})
		}
		errs = append(errs, validateState(spec, st, facts, fmt.Sprintf("states[%d]", i))...)
	}

	// E105: initial states must be declared and take no params
	for i, name := range spec.Initial {
		st, ok := spec.State(name)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("initial[%d]", i),
				Message: fmt.Sprintf("unknown initial state %q", name),
				Code:    ErrUnknownTarget,
			})
			continue
		}
		if len(st.Params) > 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("initial[%d]", i),
				Message: fmt.Sprintf("initial state %q cannot take params", name),
				Code:    ErrInvalidTargetArgs,
			})
		}
	}

	for i, d := range spec.Durings {
		if len(d.Begin) == 0 || len(d.End) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("durings[%d]", i),
				Message: fmt.Sprintf("during %q needs begin and end events", d.Name),
				Code:    ErrInvalidTransition,
			})
		}
	}

	// E113: invariants
	for i, inv := range spec.Invariants {
		field := fmt.Sprintf("invariants[%d]", i)
		if inv.Min == nil && inv.Max == nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invariant %q needs min or max", inv.Label),
				Code:    ErrInvalidInvariant,
			})
		}
		if inv.Min != nil && inv.Max != nil && *inv.Min > *inv.Max {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invariant %q has min %d > max %d", inv.Label, *inv.Min, *inv.Max),
				Code:    ErrInvalidInvariant,
			})
		}
		if inv.During != "" && !hasDuring(spec, inv.During) {
			errs = append(errs, ValidationError{
				Field:   field + ".during",
				Message: fmt.Sprintf("unknown during %q", inv.During),
				Code:    ErrInvalidInvariant,
			})
		}
		// Invariant patterns only take literals.
		errs = append(errs, validatePattern(inv.FactPattern, facts, nil, field)...)
	}

	return errs
}

// validateState maps the structural checks of ir.StateSpec to codes and
// adds the checks that need the whole monitor.
func validateState(spec *ir.MonitorSpec, st *ir.StateSpec, facts map[string][]string, field string) []ValidationError {
	var errs []ValidationError

	for _, e := range st.Validate() {
		errs = append(errs, ValidationError{
			Field:   field + "." + e.Field,
			Message: e.Message,
			Code:    stateErrorCode(e.Field),
		})
	}

	params := make(map[string]bool, len(st.Params))
	for _, p := range st.Params {
		params[p] = true
	}

	tables := []struct {
		name string
		trs  []ir.TransitionSpec
	}{{"on", st.On}, {"watch", st.Watch}}
	for _, table := range tables {
		for i, tr := range table.trs {
			trField := fmt.Sprintf("%s.%s[%d]", field, table.name, i)
			errs = append(errs, validateTransition(spec, tr, params, facts, trField)...)
		}
	}
	return errs
}

func stateErrorCode(field string) string {
	switch {
	case field == "kind":
		return ErrInvalidKind
	case strings.HasPrefix(field, "params"):
		return ErrDuplicateName
	case field == "key":
		return ErrInvalidStateKey
	case field == "watch":
		return ErrInvalidWatchTable
	default:
		return ErrInvalidTransition
	}
}

// validateTransition checks targets and bound variable usage. Variables
// are defined by the state params, then bind, then find.bind (only for
// goto targets of a find).
func validateTransition(spec *ir.MonitorSpec, tr ir.TransitionSpec, params map[string]bool, facts map[string][]string, field string) []ValidationError {
	var errs []ValidationError

	defined := make(map[string]bool, len(params)+len(tr.Bind))
	for p := range params {
		defined[p] = true
	}
	for v := range tr.Bind {
		defined[v] = true
	}

	errs = append(errs, checkTemplates(tr.Match, defined, field+".match")...)
	for i, p := range tr.If {
		errs = append(errs, validatePattern(p, facts, defined, fmt.Sprintf("%s.if[%d]", field, i))...)
	}
	for i, p := range tr.UnlessFact {
		errs = append(errs, validatePattern(p, facts, defined, fmt.Sprintf("%s.unless_fact[%d]", field, i))...)
	}

	gotoVars := defined
	if tr.Find != nil {
		errs = append(errs, validatePattern(tr.Find.FactPattern, facts, defined, field+".find")...)
		fields := facts[tr.Find.Fact]
		gotoVars = make(map[string]bool, len(defined)+len(tr.Find.Bind))
		for v := range defined {
			gotoVars[v] = true
		}
		for v, f := range tr.Find.Bind {
			if !containsString(fields, f) {
				errs = append(errs, ValidationError{
					Field:   field + ".find.bind." + v,
					Message: fmt.Sprintf("fact %q has no field %q", tr.Find.Fact, f),
					Code:    ErrInvalidFactPattern,
				})
			}
			gotoVars[v] = true
		}
		for i, t := range tr.Find.Else {
			errs = append(errs, validateTarget(spec, t, defined, fmt.Sprintf("%s.find.else[%d]", field, i))...)
		}
	}

	for i, t := range tr.Goto {
		errs = append(errs, validateTarget(spec, t, gotoVars, fmt.Sprintf("%s.goto[%d]", field, i))...)
	}
	return errs
}

// validateTarget checks that a target names a state and that every param
// of that state gets a value, either from args or from the binding of the
// same name.
func validateTarget(spec *ir.MonitorSpec, t ir.TargetSpec, defined map[string]bool, field string) []ValidationError {
	if t.State == ir.TargetOk || t.State == ir.TargetError {
		if len(t.Args) > 0 {
			return []ValidationError{{
				Field:   field + ".args",
				Message: fmt.Sprintf("%q takes no args", t.State),
				Code:    ErrInvalidTargetArgs,
			}}
		}
		return nil
	}

	st, ok := spec.State(t.State)
	if !ok {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("unknown target state %q", t.State),
			Code:    ErrUnknownTarget,
		}}
	}

	var errs []ValidationError
	params := make(map[string]bool, len(st.Params))
	for _, p := range st.Params {
		params[p] = true
		if _, given := t.Args[p]; !given && !defined[p] {
			errs = append(errs, ValidationError{
				Field:   field + ".args." + p,
				Message: fmt.Sprintf("param %q of %q has no value", p, t.State),
				Code:    ErrUndefinedBoundVariable,
			})
		}
	}
	for _, arg := range t.Args.SortedKeys() {
		if !params[arg] {
			errs = append(errs, ValidationError{
				Field:   field + ".args." + arg,
				Message: fmt.Sprintf("state %q has no param %q", t.State, arg),
				Code:    ErrInvalidTargetArgs,
			})
		}
	}
	return append(errs, checkTemplates(t.Args, defined, field+".args")...)
}

// validatePattern checks a fact pattern against the facts a monitor
// declares. With defined == nil, bound references are not allowed.
func validatePattern(p ir.FactPattern, facts map[string][]string, defined map[string]bool, field string) []ValidationError {
	fields, ok := facts[p.Fact]
	if !ok {
		return []ValidationError{{
			Field:   field + ".fact",
			Message: fmt.Sprintf("unknown fact %q", p.Fact),
			Code:    ErrInvalidFactPattern,
		}}
	}

	var errs []ValidationError
	for _, f := range p.Where.SortedKeys() {
		if !containsString(fields, f) {
			errs = append(errs, ValidationError{
				Field:   field + ".where." + f,
				Message: fmt.Sprintf("fact %q has no field %q", p.Fact, f),
				Code:    ErrInvalidFactPattern,
			})
		}
	}
	if defined == nil {
		defined = map[string]bool{}
	}
	return append(errs, checkTemplates(p.Where, defined, field+".where")...)
}

// checkTemplates reports bound references to undefined variables.
func checkTemplates(obj ir.Object, defined map[string]bool, field string) []ValidationError {
	var errs []ValidationError
	for _, k := range obj.SortedKeys() {
		if _, isNull := obj[k].(ir.Null); isNull {
			errs = append(errs, ValidationError{
				Field:   field + "." + k,
				Message: "null is not a valid template",
				Code:    ErrInvalidTransition,
			})
			continue
		}
		name, ok := queryir.IsBoundRef(obj[k])
		if ok && !defined[name] {
			errs = append(errs, ValidationError{
				Field:   field + "." + k,
				Message: fmt.Sprintf("undefined bound variable %q", name),
				Code:    ErrUndefinedBoundVariable,
			})
		}
	}
	return errs
}

// factSchema maps every fact name of a monitor to its fields: states to
// their params, durings to no fields.
func factSchema(spec *ir.MonitorSpec) map[string][]string {
	facts := make(map[string][]string, len(spec.States)+len(spec.Durings))
	for _, d := range spec.Durings {
		facts[d.Name] = nil
	}
	for _, st := range spec.States {
		facts[st.Name] = st.Params
	}
	return facts
}

func hasDuring(spec *ir.MonitorSpec, name string) bool {
	for _, d := range spec.Durings {
		if d.Name == name {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
