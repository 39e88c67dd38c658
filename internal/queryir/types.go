package queryir

import (
	"slices"
	"strings"

	"github.com/roach88/formsync/internal/ir"
)

// Tables lists the journal tables and their columns in schema order.
// It must match internal/store/schema.sql.
var Tables = map[string][]string{
	"sessions":   {"id", "form", "source"},
	"dispatches": {"id", "session_id", "seq", "source", "kind", "payload", "error"},
	"mutations":  {"dispatch_id", "idx", "reaction", "field", "attr", "value"},
}

// IsTable reports whether name is a journal table.
func IsTable(name string) bool {
	_, ok := Tables[name]
	return ok
}

// HasColumn reports whether table has column.
func HasColumn(table, column string) bool {
	return slices.Contains(Tables[table], column)
}

// SplitColumn splits "table.column" into its parts. A bare column returns
// an empty table.
func SplitColumn(ref string) (table, column string) {
	if t, c, ok := strings.Cut(ref, "."); ok {
		return t, c
	}
	return "", ref
}

// Query is a read over the journal.
//
// Sealed: only Select and Join implement it.
type Query interface {
	queryNode()
}

// Predicate filters rows.
//
// Sealed: only Equals, ColumnEquals and And implement it.
type Predicate interface {
	predicateNode()
}

// Select reads rows of one table.
//
//	Select{
//	  From:     "dispatches",
//	  Filter:   Equals{Field: "session_id", Value: ir.Text("s1")},
//	  Bindings: map[string]string{"seq": "seq", "kind": "kind"},
//	}
//
// reads seq and kind of every dispatch in session s1. Columns in Filter and
// Bindings may be bare or qualified with From.
type Select struct {
	From     string            // journal table
	Filter   Predicate         // nil means every row
	Bindings map[string]string // column -> result name; empty selects all columns
}

func (Select) queryNode() {}

// Join is an inner join of two Selects. Columns in On, and in the result
// bindings of each side, resolve against their own side's table.
//
//	Join{
//	  Left:  Select{From: "dispatches", Bindings: map[string]string{"seq": "seq"}},
//	  Right: Select{From: "mutations", Filter: Equals{Field: "field", Value: ir.Text("name")}},
//	  On:    ColumnEquals{Left: "dispatches.id", Right: "mutations.dispatch_id"},
//	}
type Join struct {
	Left  Select
	Right Select
	On    Predicate
}

func (Join) queryNode() {}

// Equals matches rows whose column equals a literal.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// ColumnEquals matches rows where two columns hold the same value.
type ColumnEquals struct {
	Left  string
	Right string
}

func (ColumnEquals) predicateNode() {}

// And matches rows satisfying every predicate. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds an And of Equals predicates from a column -> native value
// map, in sorted column order. Values go through ir.FromNative.
func Where(filter map[string]any) (Predicate, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	preds := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		v, err := ir.FromNative(filter[k])
		if err != nil {
			return nil, &ColumnError{Column: k, Message: err.Error()}
		}
		preds = append(preds, Equals{Field: k, Value: v})
	}
	return And{Predicates: preds}, nil
}
