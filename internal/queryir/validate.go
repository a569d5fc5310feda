package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
)

// ValidationResult reports whether a query stays inside the fragment both
// the in-memory evaluator and the SQL backend agree on.
type ValidationResult struct {
	IsPortable bool
	Warnings   []string
}

// Validate checks a query against the fragment rules:
//  1. a fact name is required
//  2. no comparisons with null (SQL and in-memory semantics differ)
//  3. bound variables use the bound.x form
//
// Validate is pure.
func Validate(query Query) ValidationResult {
	v := &validator{warnings: []string{}}
	v.validateQuery(query)
	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addWarning("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addWarning("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addWarning("select without a fact name")
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		if _, isNull := pred.Value.(ir.Null); isNull || pred.Value == nil {
			v.addWarning("field %q compared to null", pred.Field)
		}
	case *Equals:
		v.validatePredicate(*pred)
	case BoundEquals:
		if !strings.HasPrefix(pred.BoundVar, BoundPrefix) || pred.Name() == "" {
			v.addWarning("bound variable %q must have the form bound.name", pred.BoundVar)
		}
	case *BoundEquals:
		v.validatePredicate(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		v.validatePredicate(*pred)
	default:
		v.addWarning("unknown predicate type: %T", p)
	}
}
