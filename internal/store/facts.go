package store

import (
	"context"
	"fmt"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
	"github.com/roach88/tracemon/internal/querysql"
)

// FactMatch is one fact selected by a query, with the variables the
// query's bindings extracted from it.
type FactMatch struct {
	Monitor  string    `json:"monitor"`
	Name     string    `json:"name"`
	Args     ir.Object `json:"args"`
	Bindings ir.Object `json:"bindings,omitempty"`
}

// QueryFacts runs a fact query against the snapshot of a run. An empty
// monitor searches every monitor. bound supplies BoundEquals values.
//
// Bindings are projected from the decoded args rather than the json_extract
// columns, so integers and booleans keep their IR types.
func (s *Store) QueryFacts(ctx context.Context, runID, monitor string, q queryir.Query, bound ir.Object) ([]FactMatch, error) {
	c := querysql.NewSQLCompiler(runID)
	c.Monitor = monitor
	if bound != nil {
		c.BoundValues = bound
	}

	query, params, err := c.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile fact query: %w", err)
	}

	var bindings map[string]string
	switch sel := q.(type) {
	case queryir.Select:
		bindings = sel.Bindings
	case *queryir.Select:
		bindings = sel.Bindings
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query facts: columns: %w", err)
	}

	matches := []FactMatch{}
	for rows.Next() {
		var (
			m        FactMatch
			argsJSON string
		)
		dest := make([]any, len(cols))
		dest[0], dest[1], dest[2] = &m.Monitor, &m.Name, &argsJSON
		for i := 3; i < len(cols); i++ {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		if m.Args, err = unmarshalArgs(argsJSON); err != nil {
			return nil, err
		}
		if len(bindings) > 0 {
			m.Bindings = make(ir.Object, len(bindings))
			for field, variable := range bindings {
				if v, ok := m.Args[field]; ok {
					m.Bindings[variable] = v
				}
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return matches, nil
}
