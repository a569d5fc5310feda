package engine

import (
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
)

// extractBindings extends bound with event arguments.
//
// The bind map defines how to extract values:
//   - Key: variable name to bind (e.g., "t")
//   - Value: event argument name (e.g., "thread")
//
// Returns false when the event lacks one of the arguments: the case does
// not apply to that event. All-or-nothing: partial extraction is not
// allowed.
func extractBindings(bind map[string]string, ev ir.Event, bound ir.Object) (ir.Object, bool) {
	if len(bind) == 0 {
		return bound, true
	}
	out := bound.Clone()
	for variable, arg := range bind {
		v, ok := ev.Args[arg]
		if !ok {
			return nil, false
		}
		out[variable] = v
	}
	return out, true
}

// resolveTemplate turns a template into a value: "bound.x" reads variable
// x, anything else is a literal.
func resolveTemplate(tmpl ir.Value, bound ir.Object) (ir.Value, error) {
	name, ok := queryir.IsBoundRef(tmpl)
	if !ok {
		return tmpl, nil
	}
	v, ok := bound[name]
	if !ok {
		return nil, fmt.Errorf("bound variable %q is not defined", name)
	}
	return v, nil
}

// matchArgs checks every match template against the event. A missing
// event argument never matches.
func matchArgs(match ir.Object, ev ir.Event, bound ir.Object) (bool, error) {
	for _, arg := range match.SortedKeys() {
		want, err := resolveTemplate(match[arg], bound)
		if err != nil {
			return false, err
		}
		got, ok := ev.Args[arg]
		if !ok || !ir.Equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

// matchEventPattern checks a during begin/end pattern. Its match values are
// literals.
func matchEventPattern(p ir.EventPattern, ev ir.Event) bool {
	if p.Event != ev.Name {
		return false
	}
	ok, err := matchArgs(p.Match, ev, nil)
	return err == nil && ok
}

// resolveArgs builds a state's arguments from a target. A param without a
// template takes the bound variable of the same name.
func resolveArgs(params []string, args ir.Object, bound ir.Object) (ir.Object, error) {
	out := make(ir.Object, len(params))
	for _, p := range params {
		tmpl, ok := args[p]
		if !ok {
			tmpl = ir.String(queryir.BoundPrefix + p)
		}
		v, err := resolveTemplate(tmpl, bound)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", p, err)
		}
		if _, isNull := v.(ir.Null); isNull {
			return nil, fmt.Errorf("param %q: null is not a fact value", p)
		}
		out[p] = v
	}
	return out, nil
}
