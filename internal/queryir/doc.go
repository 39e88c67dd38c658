// Package queryir describes read queries over the session journal as data.
//
// Harness assertions and trace filters need to look up journal rows by
// column values. Rather than assembling SQL strings at each call site, they
// build a Query, check it with Validate against the journal schema, and hand
// it to a backend compiler (see internal/querysql).
//
// Query forms:
//   - Select(from, filter, bindings): rows of one journal table
//   - Join(left, right, on): inner join of two Selects
//
// Predicates:
//   - Equals: column = literal value
//   - ColumnEquals: column = column (join conditions)
//   - And: conjunction, empty means true
//
// Only tables and columns listed in Tables may be referenced. Literal values
// are ir.Value scalars (Text, Int, Bool, Date); Null never matches a journal
// column since every column is NOT NULL, and List has no column encoding.
//
// Query and Predicate are sealed interfaces so backends can switch over
// every case:
//
//	switch q := query.(type) {
//	case Select:
//	case Join:
//	}
package queryir
