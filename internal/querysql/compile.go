// Package querysql compiles queryir nodes to parameterized SQLite over the
// dataset table, where each record is a JSON document in the body column.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
)

// DefaultTable is the dataset table created by internal/store.
const DefaultTable = "dataset"

// SQLCompiler compiles queryir to parameterized SQL for SQLite.
//
// Every page query ends with ORDER BY id_key COLLATE BINARY so results are
// deterministic. Literals and JSON paths are always bound as parameters.
type SQLCompiler struct {
	// Table is the dataset table name. It is interpolated, never user input.
	Table string
}

// NewSQLCompiler creates a compiler for DefaultTable.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: DefaultTable}
}

// Compile converts a query to SQL. Returns (sql, params, error).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Count:
		return c.compileCount(query)
	case *queryir.Count:
		return c.compileCount(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) table() string {
	if c.Table == "" {
		return DefaultTable
	}
	return c.Table
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	where, params, err := c.compileWhere(q.Resource, q.Filter)
	if err != nil {
		return "", nil, err
	}

	var order []string
	for _, term := range q.OrderBy {
		order = append(order, fmt.Sprintf("json_extract(body, ?) %s", term.Order))
		params = append(params, jsonPath(term.Field))
	}
	order = append(order, stableOrderKey())

	// SQLite treats a negative LIMIT as unbounded.
	limit := q.Limit
	if limit == 0 {
		limit = -1
	}
	params = append(params, limit, q.Offset)

	sql := fmt.Sprintf("SELECT body FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		c.table(), where, strings.Join(order, ", "))
	return sql, params, nil
}

func (c *SQLCompiler) compileCount(q queryir.Count) (string, []any, error) {
	where, params, err := c.compileWhere(q.Resource, q.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.table(), where), params, nil
}

func (c *SQLCompiler) compileWhere(resource string, filter queryir.Predicate) (string, []any, error) {
	sql := "resource = ?"
	params := []any{resource}
	if filter == nil {
		return sql, params, nil
	}
	filterSQL, filterParams, err := c.compilePredicate(filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return sql + " AND " + filterSQL, append(params, filterParams...), nil
}

// stableOrderKey is the final tiebreak of every page query.
func stableOrderKey() string {
	return "id_key COLLATE BINARY ASC"
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", pred.Field, err)
		}
		return "json_extract(body, ?) = ?", []any{jsonPath(pred.Field), param}, nil
	case queryir.In:
		if len(pred.Values) == 0 {
			return "0 = 1", nil, nil
		}
		params := []any{jsonPath(pred.Field)}
		for _, v := range pred.Values {
			param, err := irValueToParam(v)
			if err != nil {
				return "", nil, fmt.Errorf("field %q: %w", pred.Field, err)
			}
			params = append(params, param)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(pred.Values)), ", ")
		return "json_extract(body, ?) IN (" + placeholders + ")", params, nil
	case queryir.IsNull:
		return "json_extract(body, ?) IS NULL", []any{jsonPath(pred.Field)}, nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var parts []string
		var params []any
		for _, inner := range pred.Predicates {
			sql, innerParams, err := c.compilePredicate(inner)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, innerParams...)
		}
		if len(parts) == 1 {
			return parts[0], params, nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// jsonPath addresses a top-level field of the body document. Field names
// are validated to contain no double quote.
func jsonPath(field string) string {
	return `$."` + field + `"`
}

// irValueToParam converts a scalar IRValue to a SQL parameter. JSON
// booleans extract as 1 and 0, which is how the driver binds Go bools.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("%T cannot be used as SQL parameter", v)
	}
}
