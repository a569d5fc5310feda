package queryir

import (
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
)

// Row is one fact visible to a query.
type Row struct {
	Name   string
	Fields ir.Object
}

// Eval runs q over rows in memory and returns one binding set per matching
// row, in row order. A row that lacks a bound field is skipped. An unbound
// variable in the filter is an error.
func Eval(q Query, rows []Row, bound ir.Object) ([]ir.Object, error) {
	sel, err := asSelect(q)
	if err != nil {
		return nil, err
	}

	var out []ir.Object
	for _, row := range rows {
		if row.Name != sel.From {
			continue
		}
		ok, err := Matches(sel.Filter, row.Fields, bound)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		b, complete := project(sel.Bindings, row.Fields)
		if !complete {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Count returns how many rows match q.
func Count(q Query, rows []Row, bound ir.Object) (int, error) {
	res, err := Eval(q, rows, bound)
	return len(res), err
}

// Matches evaluates a predicate against one row's fields.
func Matches(p Predicate, fields, bound ir.Object) (bool, error) {
	switch pred := p.(type) {
	case nil:
		return true, nil
	case Equals:
		v, ok := fields[pred.Field]
		return ok && ir.Equal(v, pred.Value), nil
	case *Equals:
		return Matches(*pred, fields, bound)
	case BoundEquals:
		want, ok := bound[pred.Name()]
		if !ok {
			return false, fmt.Errorf("bound variable %q is not defined", pred.Name())
		}
		v, ok := fields[pred.Field]
		return ok && ir.Equal(v, want), nil
	case *BoundEquals:
		return Matches(*pred, fields, bound)
	case And:
		for _, sub := range pred.Predicates {
			ok, err := Matches(sub, fields, bound)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *And:
		return Matches(*pred, fields, bound)
	default:
		return false, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func asSelect(q Query) (Select, error) {
	switch query := q.(type) {
	case Select:
		return query, nil
	case *Select:
		return *query, nil
	case nil:
		return Select{}, fmt.Errorf("cannot evaluate nil query")
	default:
		return Select{}, fmt.Errorf("unsupported query type: %T", q)
	}
}

func project(bindings map[string]string, fields ir.Object) (ir.Object, bool) {
	out := make(ir.Object, len(bindings))
	for field, variable := range bindings {
		v, ok := fields[field]
		if !ok {
			return nil, false
		}
		if _, isNull := v.(ir.Null); isNull {
			return nil, false
		}
		out[variable] = v
	}
	return out, true
}
