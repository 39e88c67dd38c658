package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/formsync/internal/ir"
)

// ApplyFunc computes new states for a reaction's writes.
//
// states holds the snapshot of the reaction's reads, in declaration order.
// The result must contain exactly one state per write target; the write's
// attribute selects which projection of that state reaches the field.
type ApplyFunc func(states []ir.FieldState, payload ir.Value) ([]ir.FieldState, error)

// Reaction is a declarative rule: when an event of the kind it is registered
// for is emitted, read Reads, compute Apply, write Writes.
type Reaction struct {
	ID     string
	Reads  []ir.FieldID
	Writes []ir.Target
	Apply  ApplyFunc
}

// RuleTable maps event kinds to ordered reaction sequences.
//
// When constructed with declared kinds, reactions for any other kind are
// rejected. A table with no declared kinds accepts every kind.
type RuleTable struct {
	declared map[ir.EventKind]bool
	kinds    []ir.EventKind // Declaration order, then first-use order
	byKind   map[ir.EventKind][]Reaction
	ids      map[string]ir.EventKind
}

// NewRuleTable creates an empty table that accepts the given kinds.
func NewRuleTable(kinds ...ir.EventKind) *RuleTable {
	t := &RuleTable{
		byKind: make(map[ir.EventKind][]Reaction),
		ids:    make(map[string]ir.EventKind),
	}
	if len(kinds) > 0 {
		t.declared = make(map[ir.EventKind]bool, len(kinds))
		for _, k := range kinds {
			if !t.declared[k] {
				t.declared[k] = true
				t.kinds = append(t.kinds, k)
			}
		}
	}
	return t
}

// AddReaction appends r to the sequence for kind.
//
// Returns ConfigurationError for an empty or duplicate reaction ID, a nil
// Apply, an undeclared kind, or a write with an invalid attribute.
func (t *RuleTable) AddReaction(kind ir.EventKind, r Reaction) error {
	if kind == "" {
		return &ConfigurationError{Reaction: r.ID, Message: "event kind must not be empty"}
	}
	if r.ID == "" {
		return &ConfigurationError{Message: fmt.Sprintf("reaction for %q has no id", kind)}
	}
	if prev, dup := t.ids[r.ID]; dup {
		return &ConfigurationError{Reaction: r.ID, Message: fmt.Sprintf("duplicate reaction id (already registered for %q)", prev)}
	}
	if r.Apply == nil {
		return &ConfigurationError{Reaction: r.ID, Message: "apply function is nil"}
	}
	if t.declared != nil && !t.declared[kind] {
		return &ConfigurationError{Reaction: r.ID, Message: fmt.Sprintf("event kind %q is not declared", kind)}
	}
	for _, w := range r.Writes {
		if !ir.ValidAttrs[w.Attr] {
			return &ConfigurationError{Reaction: r.ID, Field: w.Field, Message: fmt.Sprintf("invalid attr %q", w.Attr)}
		}
	}

	// Copy slices so later caller mutation cannot change a registered rule.
	r.Reads = slices.Clone(r.Reads)
	r.Writes = slices.Clone(r.Writes)

	if t.declared == nil {
		if _, seen := t.byKind[kind]; !seen {
			t.kinds = append(t.kinds, kind)
		}
	}
	t.byKind[kind] = append(t.byKind[kind], r)
	t.ids[r.ID] = kind
	return nil
}

// ReactionsFor returns the reactions for kind in registration order.
// An empty result means the kind is a no-op.
func (t *RuleTable) ReactionsFor(kind ir.EventKind) []Reaction {
	return slices.Clone(t.byKind[kind])
}

// Declares reports whether kind may be emitted into this table.
func (t *RuleTable) Declares(kind ir.EventKind) bool {
	if t.declared == nil {
		return true
	}
	return t.declared[kind]
}

// Kinds returns the declared kinds, or the kinds in use when none were declared.
func (t *RuleTable) Kinds() []ir.EventKind {
	return slices.Clone(t.kinds)
}

// Len returns the total number of reactions.
func (t *RuleTable) Len() int {
	return len(t.ids)
}

// each visits every reaction, grouped by kind in Kinds order.
func (t *RuleTable) each(fn func(kind ir.EventKind, r Reaction) error) error {
	for _, k := range t.kinds {
		for _, r := range t.byKind[k] {
			if err := fn(k, r); err != nil {
				return err
			}
		}
	}
	return nil
}
