// Package querysql compiles journal queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/queryir"
)

// orderKeys is the deterministic row order of each journal table.
var orderKeys = map[string][]string{
	"sessions":   {"id COLLATE BINARY"},
	"dispatches": {"session_id COLLATE BINARY", "seq", "id COLLATE BINARY"},
	"mutations":  {"dispatch_id COLLATE BINARY", "idx"},
}

// SQLCompiler compiles queryir queries to SQL for the SQLite journal.
//
// Every query carries an ORDER BY over the table's key, and every literal is
// a ? parameter.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile validates q and converts it to SQL and its parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, fmt.Errorf("invalid query: %w", res.Err())
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case queryir.Join:
		return c.compileJoin(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", c.compileBindings(q.Bindings, ""), q.From)

	var params []any
	if q.Filter != nil {
		where, whereParams, err := c.compilePredicate(q.Filter, "", q.From)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE " + where)
		params = whereParams
	}

	sb.WriteString(" ORDER BY " + orderBy(q.From, false))
	return sb.String(), params, nil
}

// compileJoin qualifies every column with its table so shared names such
// as id stay unambiguous.
func (c *SQLCompiler) compileJoin(j queryir.Join) (string, []any, error) {
	left, right := j.Left.From, j.Right.From

	var columns []string
	if len(j.Left.Bindings) == 0 && len(j.Right.Bindings) == 0 {
		columns = []string{left + ".*", right + ".*"}
	} else {
		if b := c.compileBindings(j.Left.Bindings, left); len(j.Left.Bindings) > 0 {
			columns = append(columns, b)
		}
		if b := c.compileBindings(j.Right.Bindings, right); len(j.Right.Bindings) > 0 {
			columns = append(columns, b)
		}
	}

	on, params, err := c.compilePredicate(j.On, left, left, right)
	if err != nil {
		return "", nil, fmt.Errorf("compile join on: %w", err)
	}

	var filters []string
	for _, side := range []queryir.Select{j.Left, j.Right} {
		if side.Filter == nil {
			continue
		}
		sql, sideParams, err := c.compilePredicate(side.Filter, side.From, side.From)
		if err != nil {
			return "", nil, fmt.Errorf("compile %s filter: %w", side.From, err)
		}
		filters = append(filters, sql)
		params = append(params, sideParams...)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s INNER JOIN %s ON %s",
		strings.Join(columns, ", "), left, right, on)
	if len(filters) > 0 {
		sb.WriteString(" WHERE " + strings.Join(filters, " AND "))
	}
	sb.WriteString(" ORDER BY " + orderBy(left, true) + ", " + orderBy(right, true))
	return sb.String(), params, nil
}

// compileBindings renders the column list, sorted for stable output.
// A non-empty table qualifies bare columns.
func (c *SQLCompiler) compileBindings(bindings map[string]string, table string) string {
	if len(bindings) == 0 {
		return "*"
	}

	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, col := range keys {
		alias := bindings[col]
		_, bare := queryir.SplitColumn(col)
		ref := qualify(col, table)
		if alias == bare && table == "" {
			parts = append(parts, ref)
		} else {
			parts = append(parts, fmt.Sprintf("%s AS %s", ref, alias))
		}
	}
	return strings.Join(parts, ", ")
}

// compilePredicate renders p. qualifier, when set, prefixes bare columns;
// for ColumnEquals in a join, tables gives the left and right table.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, qualifier string, tables ...string) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", pred.Field, err)
		}
		return qualify(pred.Field, qualifier) + " = ?", []any{param}, nil
	case queryir.ColumnEquals:
		l, r := pred.Left, pred.Right
		if len(tables) == 2 {
			l, r = qualify(l, tables[0]), qualify(r, tables[1])
		}
		return l + " = " + r, nil, nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := c.compilePredicate(sub, qualifier, tables...)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// qualify prefixes a bare column with table. Qualified columns and an empty
// table leave ref as is.
func qualify(ref, table string) string {
	if t, _ := queryir.SplitColumn(ref); t != "" || table == "" {
		return ref
	}
	return table + "." + ref
}

func orderBy(table string, qualified bool) string {
	keys := orderKeys[table]
	parts := make([]string, len(keys))
	for i, k := range keys {
		if qualified {
			k = table + "." + k
		}
		parts[i] = k + " ASC"
	}
	return strings.Join(parts, ", ")
}

// valueToParam converts a literal to a driver value. Dates compare by their
// ISO text.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Text:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Date:
		return string(val), nil
	default:
		return nil, fmt.Errorf("cannot use %s value as a parameter", ir.TypeName(v))
	}
}
