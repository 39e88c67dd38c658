// Package session assembles a running form session: concrete fields built
// from a FormSpec, the engine Registry holding them, a RuleTable and the
// Coordinator that connects them.
//
// Session is the external-trigger surface. Change stores a new value on the
// originating field and emits that field's bound event kind; the
// coordinator then applies the reactions. Nothing else writes field state.
package session
