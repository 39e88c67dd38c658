package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"

	"github.com/roach88/formsync/internal/ir"
)

// validIdentifier matches SQL identifiers. Column names end up in query
// text, so anything else is rejected before the schema lookup.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnError reports a column reference that cannot be used.
type ColumnError struct {
	Column  string
	Message string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q: %s", e.Column, e.Message)
}

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	Valid    bool
	Problems []error
}

// Err joins the problems into one error, or returns nil.
func (r ValidationResult) Err() error {
	return errors.Join(r.Problems...)
}

// Validate checks every table, column and literal in q against Tables.
// Validate is pure.
func Validate(q Query) ValidationResult {
	v := &validator{}
	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case Join:
		v.validateSelect(query.Left)
		v.validateSelect(query.Right)
		if query.On == nil {
			v.addf("join of %s and %s needs an on condition", query.Left.From, query.Right.From)
		} else {
			v.validatePredicate(query.On, query.Left.From, query.Right.From)
		}
	case nil:
		v.addf("nil query")
	default:
		v.addf("unsupported query type %T", q)
	}
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

type validator struct {
	problems []error
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Errorf(format, args...))
}

func (v *validator) column(ref string, message string) {
	v.problems = append(v.problems, &ColumnError{Column: ref, Message: message})
}

func (v *validator) validateSelect(sel Select) {
	if !IsTable(sel.From) {
		v.addf("invalid journal table %q", sel.From)
		return
	}

	// Sorted so problems come out in a stable order.
	cols := make([]string, 0, len(sel.Bindings))
	for col := range sel.Bindings {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		v.checkColumn(col, sel.From)
		if alias := sel.Bindings[col]; !validIdentifier.MatchString(alias) {
			v.column(col, fmt.Sprintf("invalid result name %q", alias))
		}
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter, sel.From)
	}
}

// validatePredicate checks p, resolving bare columns against the first of
// tables and qualified ones against any of them.
func (v *validator) validatePredicate(p Predicate, tables ...string) {
	switch pred := p.(type) {
	case Equals:
		v.checkColumn(pred.Field, tables...)
		v.checkLiteral(pred.Field, pred.Value)
	case ColumnEquals:
		if len(tables) == 2 {
			v.checkColumn(pred.Left, tables[0])
			v.checkColumn(pred.Right, tables[1])
		} else {
			v.checkColumn(pred.Left, tables...)
			v.checkColumn(pred.Right, tables...)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, tables...)
		}
	case nil:
		v.addf("nil predicate")
	default:
		v.addf("unsupported predicate type %T", p)
	}
}

func (v *validator) checkColumn(ref string, tables ...string) {
	table, col := SplitColumn(ref)
	if !validIdentifier.MatchString(col) || (table != "" && !validIdentifier.MatchString(table)) {
		v.column(ref, "invalid column name")
		return
	}
	if table == "" {
		table = tables[0]
	} else if !slices.Contains(tables, table) {
		v.column(ref, fmt.Sprintf("table %s is not part of this query", table))
		return
	}
	if !HasColumn(table, col) {
		v.column(ref, fmt.Sprintf("no such column in %s", table))
	}
}

func (v *validator) checkLiteral(ref string, value ir.Value) {
	switch value.(type) {
	case ir.Text, ir.Int, ir.Bool, ir.Date:
	default:
		v.column(ref, fmt.Sprintf("cannot compare with %s value", ir.TypeName(value)))
	}
}
