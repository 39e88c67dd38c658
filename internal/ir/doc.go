// Package ir provides the shared value and record types for formsync.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the field, engine,
// compiler and store layers free of circular dependencies.
//
// Key design constraints:
//   - Value is a sealed variant (Null, Text, Bool, Int, Date, List); the
//     engine never inspects concrete value types itself
//   - No float values: numbers are int64
//   - Dates are calendar days ("2006-01-02"), never instants
//   - Logical sequence numbers only, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
