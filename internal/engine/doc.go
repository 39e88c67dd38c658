// Package engine implements the formsync coordination engine.
//
// The engine keeps a set of interdependent form fields consistent. Fields
// never call each other; they emit events to a Coordinator, which looks up
// the reactions registered for the event kind and applies them through the
// field Registry.
//
// ARCHITECTURE:
//
//	Field trigger ──Emit(event)──▶ Coordinator ──ReactionsFor(kind)──▶ RuleTable
//	                                   │
//	                                   ├── Registry.Snapshot(reads)
//	                                   ├── reaction.Apply(states, payload)
//	                                   └── Registry writes (enabled/required/reload)
//
// Dispatch Model:
// Emit is synchronous and runs to completion before returning. Reactions for
// one kind run in registration order; a later reaction observes the states
// written by earlier ones, so for a field written twice the last writer wins.
//
// A reaction is validated before any of its writes are applied, so a
// reaction is never half-applied. Dispatch is NOT transactional across
// reactions: when reaction N fails, reactions 1..N-1 of the same event stay
// applied and the error is returned to the caller. The coordinator stays
// usable for later events.
//
// Re-entry:
// Emit called while a dispatch is in progress on the same coordinator fails
// with ReentrantDispatchError. Cascades are therefore bounded to one level;
// follow-on coordination must be modeled as a new, separately emitted event.
//
// Concurrency:
// The coordinator assumes a single writer. Hosts that receive changes from
// several goroutines serialize them through a Loop, which owns a FIFO queue
// and calls Emit from exactly one goroutine. A session hosted on a Loop
// queues its field changes the same way, so field state is only touched
// from the Run goroutine.
//
// Determinism:
// Every dispatch is stamped with a logical sequence number from Clock and
// reported to observers as an ir.Dispatch record. Replaying recorded events
// into a fresh session reproduces the same mutation sequence.
package engine
