package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tracemon/internal/ir"
)

// keyedPattern matches keyed("field_name")
var keyedPattern = regexp.MustCompile(`^keyed\("([^"]+)"\)$`)

// CompileMonitor parses a CUE value into a MonitorSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the monitor struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`monitor: Locks: { ... }`)
//	spec, err := CompileMonitor(v.LookupPath(cue.ParsePath("monitor.Locks")))
func CompileMonitor(v cue.Value) (*ir.MonitorSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.MonitorSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	spec.Scope, err = parseScope(v)
	if err != nil {
		return nil, err
	}

	if spec.StopOnError, err = optionalBool(v, "stop_on_error"); err != nil {
		return nil, err
	}
	if spec.PrintSteps, err = optionalBool(v, "print_steps"); err != nil {
		return nil, err
	}

	spec.States, err = parseStates(v)
	if err != nil {
		return nil, err
	}
	if len(spec.States) == 0 {
		return nil, &CompileError{
			Field:   "state",
			Message: "at least one state is required",
			Pos:     v.Pos(),
		}
	}

	spec.Initial, err = stringList(v, "initial")
	if err != nil {
		return nil, err
	}
	if len(spec.Initial) == 0 {
		spec.Initial = []string{spec.States[0].Name}
	}

	spec.Durings, err = parseDurings(v)
	if err != nil {
		return nil, err
	}

	spec.Invariants, err = parseInvariants(v)
	if err != nil {
		return nil, err
	}

	spec.Monitors, err = stringList(v, "monitors")
	if err != nil {
		return nil, err
	}

	examplesVal := v.LookupPath(cue.ParsePath("examples"))
	if examplesVal.Exists() {
		spec.Examples, err = parseExamples(examplesVal)
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// parseScope extracts the scope. A missing scope means global.
func parseScope(v cue.Value) (ir.ScopeSpec, error) {
	scopeVal := v.LookupPath(cue.ParsePath("scope"))
	if !scopeVal.Exists() {
		return ir.ScopeSpec{Mode: ir.ScopeGlobal}, nil
	}

	scopeStr, err := scopeVal.String()
	if err != nil {
		return ir.ScopeSpec{}, formatCUEError(err)
	}

	if matches := keyedPattern.FindStringSubmatch(scopeStr); matches != nil {
		return ir.ScopeSpec{
			Mode: ir.ScopeKeyed,
			Key:  matches[1],
		}, nil
	}

	if scopeStr != ir.ScopeGlobal {
		return ir.ScopeSpec{}, &CompileError{
			Field:   "scope",
			Message: fmt.Sprintf("invalid scope %q, must be \"global\" or keyed(\"field\")", scopeStr),
			Pos:     scopeVal.Pos(),
		}
	}

	return ir.ScopeSpec{Mode: scopeStr}, nil
}

// parseStates extracts state definitions in declaration order.
func parseStates(v cue.Value) ([]ir.StateSpec, error) {
	var states []ir.StateSpec

	stateVal := v.LookupPath(cue.ParsePath("state"))
	if !stateVal.Exists() {
		return states, nil
	}

	iter, err := stateVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Selector().Unquoted()
		sv := iter.Value()
		field := "state." + name

		state := ir.StateSpec{Name: name}

		kindVal := sv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{
				Field:   field + ".kind",
				Message: "kind is required",
				Pos:     sv.Pos(),
			}
		}
		if state.Kind, err = kindVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if state.Params, err = stringList(sv, "params"); err != nil {
			return nil, err
		}
		if state.Key, err = optionalString(sv, "key"); err != nil {
			return nil, err
		}
		if state.On, err = parseTransitions(sv, "on", field); err != nil {
			return nil, err
		}
		if state.Watch, err = parseTransitions(sv, "watch", field); err != nil {
			return nil, err
		}

		states = append(states, state)
	}

	return states, nil
}

// parseDurings extracts interval facts.
func parseDurings(v cue.Value) ([]ir.DuringSpec, error) {
	duringVal := v.LookupPath(cue.ParsePath("during"))
	if !duringVal.Exists() {
		return nil, nil
	}

	iter, err := duringVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var durings []ir.DuringSpec
	for iter.Next() {
		d := ir.DuringSpec{Name: iter.Selector().Unquoted()}
		field := "during." + d.Name

		if d.Begin, err = parseEventPatterns(iter.Value(), "begin", field); err != nil {
			return nil, err
		}
		if d.End, err = parseEventPatterns(iter.Value(), "end", field); err != nil {
			return nil, err
		}
		durings = append(durings, d)
	}
	return durings, nil
}

// parseEventPatterns accepts a list of event names or {event, match}
// structs.
func parseEventPatterns(v cue.Value, name, field string) ([]ir.EventPattern, error) {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil, &CompileError{
			Field:   field + "." + name,
			Message: name + " events are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var patterns []ir.EventPattern
	for iter.Next() {
		ev := iter.Value()
		if s, err := ev.String(); err == nil {
			patterns = append(patterns, ir.EventPattern{Event: s})
			continue
		}

		p := ir.EventPattern{}
		if p.Event, err = requiredString(ev, "event", field+"."+name); err != nil {
			return nil, err
		}
		if p.Match, err = optionalObject(ev, "match"); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// parseInvariants extracts fact-count invariants. The label is the
// invariant's struct label.
func parseInvariants(v cue.Value) ([]ir.InvariantSpec, error) {
	invVal := v.LookupPath(cue.ParsePath("invariant"))
	if !invVal.Exists() {
		return nil, nil
	}

	iter, err := invVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var invs []ir.InvariantSpec
	for iter.Next() {
		label := iter.Selector().Unquoted()
		iv := iter.Value()
		field := fmt.Sprintf("invariant.%q", label)

		inv := ir.InvariantSpec{Label: label}
		if inv.FactPattern, err = parseFactPattern(iv, field); err != nil {
			return nil, err
		}
		if inv.Min, err = optionalInt(iv, "min"); err != nil {
			return nil, err
		}
		if inv.Max, err = optionalInt(iv, "max"); err != nil {
			return nil, err
		}
		if inv.During, err = optionalString(iv, "during"); err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, nil
}

// parseExamples parses the examples a monitor links to.
// Supports:
// - Single string: "description text"
// - Single object: { description: "...", scenario: "..." }
// - Array of strings or objects
func parseExamples(v cue.Value) ([]ir.Example, error) {
	if s, err := v.String(); err == nil {
		return []ir.Example{{Description: s}}, nil
	}

	if v.LookupPath(cue.ParsePath("description")).Exists() {
		ex, err := parseExample(v)
		if err != nil {
			return nil, err
		}
		return []ir.Example{ex}, nil
	}

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var examples []ir.Example
	for iter.Next() {
		ex, err := parseExample(iter.Value())
		if err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
	return examples, nil
}

func parseExample(v cue.Value) (ir.Example, error) {
	var ex ir.Example

	if s, err := v.String(); err == nil {
		ex.Description = s
		return ex, nil
	}

	if !v.LookupPath(cue.ParsePath("description")).Exists() {
		return ex, &CompileError{
			Field:   "examples",
			Message: "must be a string or object with description field",
			Pos:     v.Pos(),
		}
	}

	var err error
	if ex.Description, err = optionalString(v, "description"); err != nil {
		return ex, err
	}
	if ex.Scenario, err = optionalString(v, "scenario"); err != nil {
		return ex, err
	}
	return ex, nil
}

// toValue converts concrete CUE data into an ir.Value.
// Floats are forbidden; they break canonical hashing.
func toValue(v cue.Value) (ir.Value, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for iter.Next() {
			elem, err := toValue(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		return toObject(v)
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func toObject(v cue.Value) (ir.Object, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	obj := ir.Object{}
	for iter.Next() {
		val, err := toValue(iter.Value())
		if err != nil {
			return nil, err
		}
		obj[iter.Selector().Unquoted()] = val
	}
	return obj, nil
}

func optionalObject(v cue.Value, name string) (ir.Object, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	if fv.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   name,
			Message: "must be a struct",
			Pos:     fv.Pos(),
		}
	}
	return toObject(fv)
}

func optionalString(v cue.Value, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalInt(v cue.Value, name string) (*int64, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	if k := fv.IncompleteKind(); k == cue.FloatKind || k == cue.NumberKind {
		return nil, &CompileError{
			Field:   name,
			Message: "float values are forbidden - use int instead",
			Pos:     fv.Pos(),
		}
	}
	n, err := fv.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &n, nil
}

func stringList(v cue.Value, name string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMap(v cue.Value, name, field string) (map[string]string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]string)
	for iter.Next() {
		key := iter.Selector().Unquoted()
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("%s.%s.%s", field, name, key),
				Message: "binding value must be a string field name",
				Pos:     iter.Value().Pos(),
			}
		}
		out[key] = s
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
