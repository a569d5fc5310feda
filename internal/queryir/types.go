package queryir

import (
	"sort"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
)

// BoundPrefix marks a template that refers to a bound variable.
const BoundPrefix = "bound."

// Query is a sealed interface over fact queries. Backends switch on the
// concrete types exhaustively.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface over filter conditions.
//
// The fragment is deliberately small: Equals, BoundEquals and And. There is
// no OR; write two transitions instead.
type Predicate interface {
	predicateNode()
}

// Select reads the facts named From that satisfy Filter and binds some of
// their fields to variables.
//
//	Select{
//	  From:     "Locked",
//	  Filter:   And{Predicates: []Predicate{
//	    BoundEquals{Field: "l", BoundVar: "bound.lock"},
//	    Equals{Field: "mode", Value: ir.String("exclusive")},
//	  }},
//	  Bindings: map[string]string{"t": "holder"},
//	}
//
// yields one binding {"holder": <t>} per Locked fact held on the bound lock.
type Select struct {
	From     string            // fact name
	Filter   Predicate         // nil matches every fact
	Bindings map[string]string // fact field -> variable
}

func (Select) queryNode() {}

// Equals compares a fact field to a literal.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// BoundEquals compares a fact field to a bound variable ("bound.x").
type BoundEquals struct {
	Field    string
	BoundVar string
}

func (BoundEquals) predicateNode() {}

// Name returns the variable name without the bound. prefix.
func (b BoundEquals) Name() string {
	return strings.TrimPrefix(b.BoundVar, BoundPrefix)
}

// And holds when all of its predicates hold. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// IsBoundRef reports whether a template value refers to a bound variable.
func IsBoundRef(v ir.Value) (string, bool) {
	s, ok := v.(ir.String)
	if !ok || !strings.HasPrefix(string(s), BoundPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(s), BoundPrefix), true
}

// FromPattern builds the Select for a declarative fact pattern. Template
// values of the form "bound.x" become BoundEquals, others Equals.
// Predicates are ordered by field name so compiled SQL is stable.
func FromPattern(p ir.FactPattern, bindings map[string]string) Select {
	fields := make([]string, 0, len(p.Where))
	for f := range p.Where {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var preds []Predicate
	for _, f := range fields {
		tmpl := p.Where[f]
		if name, ok := IsBoundRef(tmpl); ok {
			preds = append(preds, BoundEquals{Field: f, BoundVar: BoundPrefix + name})
			continue
		}
		preds = append(preds, Equals{Field: f, Value: tmpl})
	}

	sel := Select{From: p.Fact, Bindings: bindings}
	if len(preds) > 0 {
		sel.Filter = And{Predicates: preds}
	}
	return sel
}
