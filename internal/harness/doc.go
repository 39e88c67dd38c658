// Package harness runs YAML conformance scenarios against form sessions.
//
// A scenario builds a session from the built-in order form or a CUE file,
// applies a sequence of changes and direct emits, journals every dispatch
// to an in-memory SQLite store, and checks assertions against the trace
// read back from that journal and the final field states.
//
// # Scenario Format
//
//	name: pickup_disables_delivery
//	description: "Pickup disables date and time slot"
//	rules: builtin:order        # or a path to a .cue file
//	session: s-1                # optional fixed session ID
//	steps:
//	  - change: pickup
//	    value: true
//	  - emit: colorChanged
//	    source: date
//	    value: null
//	    expect_error: configuration
//	assertions:
//	  - type: field_state
//	    field: date
//	    expect: { enabled: false }
//	  - type: trace_count
//	    kind: pickupChanged
//	    count: 1
//
// # Assertion Types
//
//   - field_state: Verifies a field's value, enabled, or required flag
//   - reload_count: Verifies how many times a field reloaded
//   - trace_contains: Verifies a kind was dispatched, optionally with a write
//   - trace_order: Verifies kinds were dispatched in the specified order
//   - trace_count: Verifies a kind (or write) occurs exactly N times
//   - journal_row: Queries a journal table and verifies column values
//
// # Deterministic Testing
//
// Scenarios run with a fixed session ID and the coordinator's logical
// clock, so dispatch IDs and traces are identical across runs. Golden
// snapshots are canonical JSON (see ir.MarshalCanonical).
package harness
