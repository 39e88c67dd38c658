package ir

import (
	"fmt"
	"strings"
)

// FieldID identifies a field within one registry.
// It is opaque to the engine and stable for the lifetime of a session.
type FieldID string

// EventKind names a class of field-originated change ("dateChanged").
// Rule tables are keyed by EventKind; the set of kinds a form may emit is
// declared up front so unknown kinds are rejected at configuration time.
type EventKind string

// FieldState is the externally observable state of a field.
type FieldState struct {
	Value    Value `json:"value"`
	Enabled  bool  `json:"enabled"`
	Required bool  `json:"required"`
}

// Event is a field-originated change submitted to the coordinator.
// Events are passed by value and never mutated after construction.
type Event struct {
	Source  FieldID   `json:"source"`
	Kind    EventKind `json:"kind"`
	Payload Value     `json:"payload"`
}

// NewEvent creates an Event. A nil payload is stored as Null{}.
func NewEvent(source FieldID, kind EventKind, payload Value) Event {
	return Event{Source: source, Kind: kind, Payload: OrNull(payload)}
}

// Capability is the set of operations a field supports.
// A field need only implement the capabilities its role requires.
type Capability uint8

const (
	// CapRead means the field exposes its current value.
	CapRead Capability = 1 << iota
	// CapEnable means the field can be enabled or disabled.
	CapEnable
	// CapRequire means the field can be marked required.
	CapRequire
	// CapReload means the field can recompute itself from a dependency value.
	CapReload
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapRead, "read"},
	{CapEnable, "enable"},
	{CapRequire, "require"},
	{CapReload, "reload"},
}

// Has reports whether every capability in want is present in c.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// String renders the set as "read|enable". The empty set is "none".
func (c Capability) String() string {
	var parts []string
	for _, cn := range capabilityNames {
		if c.Has(cn.cap) {
			parts = append(parts, cn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Attr is the field attribute a reaction writes.
type Attr string

const (
	// AttrEnabled writes FieldState.Enabled via the enable capability.
	AttrEnabled Attr = "enabled"
	// AttrRequired writes FieldState.Required via the require capability.
	AttrRequired Attr = "required"
	// AttrReload passes FieldState.Value to the field's reload capability.
	AttrReload Attr = "reload"
)

// ValidAttrs lists the writable attributes.
var ValidAttrs = map[Attr]bool{
	AttrEnabled:  true,
	AttrRequired: true,
	AttrReload:   true,
}

// Capability returns the capability a write of this attribute needs.
// Unknown attributes need nothing and report 0.
func (a Attr) Capability() Capability {
	switch a {
	case AttrEnabled:
		return CapEnable
	case AttrRequired:
		return CapRequire
	case AttrReload:
		return CapReload
	default:
		return 0
	}
}

// ParseAttr parses an attribute name.
func ParseAttr(s string) (Attr, error) {
	a := Attr(s)
	if !ValidAttrs[a] {
		return "", fmt.Errorf("invalid attr %q, must be \"enabled\", \"required\", or \"reload\"", s)
	}
	return a, nil
}

// Target is one write declared by a reaction: which field and which attribute.
type Target struct {
	Field FieldID `json:"field"`
	Attr  Attr    `json:"attr"`
}

// String renders the target as "field.attr".
func (t Target) String() string {
	return string(t.Field) + "." + string(t.Attr)
}

// Mutation records one write applied to a field during a dispatch.
// Value is Bool for enabled/required writes and the reload argument for reloads.
type Mutation struct {
	Reaction string  `json:"reaction"`
	Field    FieldID `json:"field"`
	Attr     Attr    `json:"attr"`
	Value    Value   `json:"value"`
}

// Dispatch records the outcome of one Emit call.
//
// Mutations lists every write that was applied, in order. When Err is set the
// dispatch aborted part-way; mutations applied before the failure are kept.
type Dispatch struct {
	ID        string     `json:"id"` // Content-addressed hash (see EventID)
	Session   string     `json:"session"`
	Seq       int64      `json:"seq"` // Logical clock
	Event     Event      `json:"event"`
	Mutations []Mutation `json:"mutations"`
	Err       string     `json:"error,omitempty"`
}
