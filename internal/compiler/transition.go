package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/tracemon/internal/ir"
)

// parseTransitions extracts the transition table stored under name.
func parseTransitions(v cue.Value, name, stateField string) ([]ir.TransitionSpec, error) {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ir.TransitionSpec
	for i := 0; iter.Next(); i++ {
		tr, err := parseTransition(iter.Value(), fmt.Sprintf("%s.%s[%d]", stateField, name, i))
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// parseTransition parses one case of a transition table.
func parseTransition(v cue.Value, field string) (ir.TransitionSpec, error) {
	tr := ir.TransitionSpec{}

	var err error
	if tr.Event, err = requiredString(v, "event", field); err != nil {
		return tr, err
	}

	if tr.Bind, err = stringMap(v, "bind", field); err != nil {
		return tr, err
	}

	if tr.Match, err = optionalObject(v, "match"); err != nil {
		return tr, err
	}

	if tr.If, err = parseFactPatterns(v, "if", field); err != nil {
		return tr, err
	}
	if tr.UnlessFact, err = parseFactPatterns(v, "unless_fact", field); err != nil {
		return tr, err
	}

	findVal := v.LookupPath(cue.ParsePath("find"))
	if findVal.Exists() {
		find := &ir.FindSpec{}
		if find.FactPattern, err = parseFactPattern(findVal, field+".find"); err != nil {
			return tr, err
		}
		if find.Bind, err = stringMap(findVal, "bind", field+".find"); err != nil {
			return tr, err
		}
		if find.Else, err = parseTargets(findVal, "else", field+".find"); err != nil {
			return tr, err
		}
		tr.Find = find
	}

	gotoVal := v.LookupPath(cue.ParsePath("goto"))
	if !gotoVal.Exists() && tr.Find == nil {
		return tr, &CompileError{
			Field:   field + ".goto",
			Message: "goto is required",
			Pos:     v.Pos(),
		}
	}
	if tr.Goto, err = parseTargets(v, "goto", field); err != nil {
		return tr, err
	}

	if tr.Message, err = optionalString(v, "message"); err != nil {
		return tr, err
	}

	return tr, nil
}

// parseTargets accepts a list whose elements are state names ("ok",
// "error" or a declared state) or {state, args} structs.
func parseTargets(v cue.Value, name, field string) ([]ir.TargetSpec, error) {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var targets []ir.TargetSpec
	for iter.Next() {
		tv := iter.Value()
		if s, err := tv.String(); err == nil {
			targets = append(targets, ir.TargetSpec{State: s})
			continue
		}

		t := ir.TargetSpec{}
		if t.State, err = requiredString(tv, "state", field+"."+name); err != nil {
			return nil, err
		}
		if t.Args, err = optionalObject(tv, "args"); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func parseFactPatterns(v cue.Value, name, field string) ([]ir.FactPattern, error) {
	listVal := v.LookupPath(cue.ParsePath(name))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ir.FactPattern
	for iter.Next() {
		p, err := parseFactPattern(iter.Value(), field+"."+name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parseFactPattern parses {fact, where}.
func parseFactPattern(v cue.Value, field string) (ir.FactPattern, error) {
	p := ir.FactPattern{}

	var err error
	if p.Fact, err = requiredString(v, "fact", field); err != nil {
		return p, err
	}
	if p.Where, err = optionalObject(v, "where"); err != nil {
		return p, err
	}
	return p, nil
}
