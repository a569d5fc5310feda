package querysql

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/queryir"
)

// FactsTable is the snapshot table queries run against.
const FactsTable = "facts"

// identPattern restricts field and variable names, which end up inside the
// SQL text as JSON paths and column aliases.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCompiler compiles fact queries to parameterized SQLite over the facts
// table. Every query has an ORDER BY and every value is a parameter.
type SQLCompiler struct {
	// RunID restricts results to one run when non-empty.
	RunID string

	// Monitor restricts results to one monitor when non-empty.
	Monitor string

	// BoundValues supplies the values of BoundEquals predicates.
	BoundValues ir.Object
}

// NewSQLCompiler creates a compiler scoped to a run.
func NewSQLCompiler(runID string) *SQLCompiler {
	return &SQLCompiler{
		RunID:       runID,
		BoundValues: ir.Object{},
	}
}

// Compile converts a query to SQL and its parameters.
//
// Selected columns are always monitor, name and args, followed by one
// column per binding named after the bound variable.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if q.From == "" {
		return "", nil, fmt.Errorf("select requires a fact name")
	}

	columns, err := c.compileBindings(q.Bindings)
	if err != nil {
		return "", nil, err
	}

	conds := []string{"name = ?"}
	params := []any{q.From}
	if c.RunID != "" {
		conds = append(conds, "run_id = ?")
		params = append(params, c.RunID)
	}
	if c.Monitor != "" {
		conds = append(conds, "monitor = ?")
		params = append(params, c.Monitor)
	}
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		conds = append(conds, filterSQL)
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		columns,
		FactsTable,
		strings.Join(conds, " AND "),
		stableOrderKey())
	return sql, params, nil
}

// compileBindings lists the selected columns. Bindings are sorted by field
// for stable output.
func (c *SQLCompiler) compileBindings(bindings map[string]string) (string, error) {
	parts := []string{"monitor", "name", "args"}

	fields := make([]string, 0, len(bindings))
	for f := range bindings {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		variable := bindings[field]
		if !identPattern.MatchString(variable) {
			return "", fmt.Errorf("invalid variable name %q", variable)
		}
		path, err := jsonPath(field)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("json_extract(args, %s) AS %q", path, variable))
	}
	return strings.Join(parts, ", "), nil
}

// stableOrderKey is the ORDER BY of every compiled query: snapshot
// insertion order, which follows soup order.
func stableOrderKey() string {
	return "id ASC"
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileComparison(pred.Field, pred.Value)
	case *queryir.Equals:
		return c.compileComparison(pred.Field, pred.Value)
	case queryir.BoundEquals:
		return c.compileBoundEquals(pred)
	case *queryir.BoundEquals:
		return c.compileBoundEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileComparison(field string, v ir.Value) (string, []any, error) {
	path, err := jsonPath(field)
	if err != nil {
		return "", nil, err
	}
	param, err := valueToParam(v)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", field, err)
	}
	return fmt.Sprintf("json_extract(args, %s) = ?", path), []any{param}, nil
}

func (c *SQLCompiler) compileBoundEquals(b queryir.BoundEquals) (string, []any, error) {
	v, ok := c.BoundValues[b.Name()]
	if !ok {
		return "", nil, fmt.Errorf("bound variable %q has no value", b.Name())
	}
	return c.compileComparison(b.Field, v)
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// jsonPath quotes a field as a SQLite JSON path literal.
func jsonPath(field string) (string, error) {
	if !identPattern.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return "'$." + field + "'", nil
}

// valueToParam converts a value to a SQLite parameter. json_extract returns
// JSON booleans as 0 and 1, so booleans bind as integers.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Null, nil:
		return nil, fmt.Errorf("null cannot be compared")
	case ir.Array, ir.Object:
		return nil, fmt.Errorf("%T cannot be used as a SQL parameter", v)
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
