package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/queryir"
	"github.com/roach88/formsync/internal/querysql"
	"github.com/roach88/formsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s from %s = %v\n", event.Seq, event.Kind, event.Source, event.Payload)
			for _, m := range event.Mutations {
				fmt.Fprintf(&buf, "        %s.%s = %v (%s)\n", m.Field, m.Attr, m.Value, m.Reaction)
			}
		}
	}

	return buf.String()
}

// assertFieldState checks a field's final state (subset semantics).
func assertFieldState(result *Result, assertion Assertion) error {
	st, ok := result.FieldState(assertion.Field)
	if !ok {
		return &AssertionError{
			Type:     AssertFieldState,
			Expected: fmt.Sprintf("field %s", assertion.Field),
			Actual:   "field not in session",
		}
	}

	actual := map[string]any{
		"value":    st.Value,
		"enabled":  st.Enabled,
		"required": st.Required,
	}
	for _, key := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[key]
		if !valuesEqual(actual[key], want) {
			return &AssertionError{
				Type:     AssertFieldState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Field, key, want),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Field, key, actual[key]),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertReloadCount checks how many times a field reloaded.
func assertReloadCount(result *Result, assertion Assertion) error {
	st, ok := result.FieldState(assertion.Field)
	if !ok {
		return &AssertionError{
			Type:     AssertReloadCount,
			Expected: fmt.Sprintf("field %s", assertion.Field),
			Actual:   "field not in session",
		}
	}
	if st.ReloadCount != assertion.Count {
		return &AssertionError{
			Type:     AssertReloadCount,
			Expected: fmt.Sprintf("%s reloaded %d times", assertion.Field, assertion.Count),
			Actual:   fmt.Sprintf("%d reloads", st.ReloadCount),
			Trace:    result.Trace,
		}
	}
	return nil
}

// matchesWrite counts how often an event matches the assertion: once per
// dispatch of the kind, or once per matching write when a field is named.
func matchesWrite(event TraceEvent, assertion Assertion) int {
	if assertion.Kind != "" && event.Kind != assertion.Kind {
		return 0
	}
	if assertion.Field == "" {
		return 1
	}
	n := 0
	for _, m := range event.Mutations {
		if m.Field == assertion.Field && (assertion.Attr == "" || m.Attr == assertion.Attr) {
			n++
		}
	}
	return n
}

// assertTraceContains checks that the trace holds a dispatch of the kind,
// with a matching write when a field is named.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesWrite(event, assertion) > 0 {
			return nil
		}
	}

	expected := fmt.Sprintf("dispatch of %s", assertion.Kind)
	if assertion.Field != "" {
		expected += fmt.Sprintf(" writing %s", assertion.Field)
		if assertion.Attr != "" {
			expected += "." + assertion.Attr
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if kinds appear in the specified order.
// Kinds don't need to be consecutive (intervening dispatches are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected kind
	positions := make(map[string]int)
	for i, event := range trace {
		for _, kind := range assertion.Kinds {
			if event.Kind == kind && positions[kind] == 0 {
				positions[kind] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all kinds found
	for _, kind := range assertion.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all kinds present: %v", assertion.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Kinds); i++ {
		prev := assertion.Kinds[i-1]
		curr := assertion.Kinds[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("kinds in order: %v", assertion.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the kind (or write) appears exactly the
// specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		count += matchesWrite(event, assertion)
	}

	if count != assertion.Count {
		what := assertion.Kind
		if assertion.Field != "" {
			what = "writes to " + assertion.Field
			if assertion.Kind != "" {
				what = assertion.Kind + " " + what
			}
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertJournalRow checks that exactly one journal row matches Where and
// holds the expected column values (subset semantics).
//
// The lookup goes through queryir, so the table and every column are
// checked against the journal schema before any SQL is built.
func assertJournalRow(ctx context.Context, st *store.Store, assertion Assertion) error {
	filter, err := queryir.Where(assertion.Where)
	if err != nil {
		return err
	}
	query, args, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:   assertion.Table,
		Filter: filter,
	})
	if err != nil {
		return err
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous
	if rows.Next() {
		return &AssertionError{
			Type:     AssertJournalRow,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertJournalRow,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not present in result columns: %v", key, columns),
			}
		}
		if !columnValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertJournalRow,
				Expected: fmt.Sprintf("column %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// columnValuesEqual compares a YAML value with a scanned SQLite column.
// SQLite returns INTEGER as int64 and TEXT as string or []byte.
func columnValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	switch e := expected.(type) {
	case int:
		a, ok := actual.(int64)
		return ok && a == int64(e)
	case bool:
		a, ok := actual.(int64)
		return ok && (a != 0) == e
	}
	return reflect.DeepEqual(expected, actual)
}

// valuesEqual compares a native field value with a YAML expectation.
// Dates compare by their string form.
func valuesEqual(actual, expected any) bool {
	ev, err := ir.FromNative(expected)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(actual, ir.ToNative(ev))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssertionContext provides journal access for journal_row assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFieldState:
			err = assertFieldState(result, assertion)
		case AssertReloadCount:
			err = assertReloadCount(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertJournalRow:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: journal_row requires database context", i)
			} else {
				err = assertJournalRow(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
