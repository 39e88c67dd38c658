package engine

import (
	"fmt"

	"github.com/roach88/formsync/internal/field"
	"github.com/roach88/formsync/internal/ir"
)

// Registry owns the field instances of one form session and resolves them
// by FieldID. It records each field's capability set at registration.
//
// Not safe for concurrent use. Fields are registered before the first emit,
// after which the goroutine that emits is the only one touching field state,
// so a Snapshot never interleaves with a write.
type Registry struct {
	fields map[ir.FieldID]entry
	order  []ir.FieldID // Registration order
}

type entry struct {
	field field.Field
	caps  ir.Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[ir.FieldID]entry)}
}

// Register inserts f under id.
//
// Returns DuplicateFieldError if id is taken and ConfigurationError if id is
// empty or f implements no capability at all.
func (r *Registry) Register(id ir.FieldID, f field.Field) error {
	if id == "" {
		return &ConfigurationError{Message: "field id must not be empty"}
	}
	if _, exists := r.fields[id]; exists {
		return &DuplicateFieldError{Field: id}
	}
	if f == nil {
		return &ConfigurationError{Field: id, Message: "field is nil"}
	}
	caps := field.Capabilities(f)
	if caps == 0 {
		return &ConfigurationError{Field: id, Message: fmt.Sprintf("%T implements no field capability", f)}
	}

	r.fields[id] = entry{field: f, caps: caps}
	r.order = append(r.order, id)
	return nil
}

// Get returns the field registered under id.
func (r *Registry) Get(id ir.FieldID) (field.Field, error) {
	e, ok := r.fields[id]
	if !ok {
		return nil, &UnknownFieldError{Field: id}
	}
	return e.field, nil
}

// Capabilities returns the capability set recorded for id.
func (r *Registry) Capabilities(id ir.FieldID) (ir.Capability, error) {
	e, ok := r.fields[id]
	if !ok {
		return 0, &UnknownFieldError{Field: id}
	}
	return e.caps, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id ir.FieldID) bool {
	_, ok := r.fields[id]
	return ok
}

// Snapshot returns the current states of ids, in the order requested.
// All states are read in one pass with no writes in between.
func (r *Registry) Snapshot(ids ...ir.FieldID) ([]ir.FieldState, error) {
	states := make([]ir.FieldState, len(ids))
	for i, id := range ids {
		e, ok := r.fields[id]
		if !ok {
			return nil, &UnknownFieldError{Field: id}
		}
		states[i] = field.StateOf(e.field)
	}
	return states, nil
}

// IDs returns registered field IDs in registration order.
func (r *Registry) IDs() []ir.FieldID {
	out := make([]ir.FieldID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	return len(r.order)
}

// checkTarget verifies that a write target exists and supports its attribute.
func (r *Registry) checkTarget(reaction string, t ir.Target) error {
	e, ok := r.fields[t.Field]
	if !ok {
		return &UnknownFieldError{Field: t.Field, Reaction: reaction}
	}
	need := t.Attr.Capability()
	if need == 0 {
		return &ConfigurationError{Reaction: reaction, Field: t.Field, Message: fmt.Sprintf("invalid attr %q", t.Attr)}
	}
	if !e.caps.Has(need) {
		return &ConfigurationError{
			Reaction: reaction,
			Field:    t.Field,
			Message:  fmt.Sprintf("writes %s but field only supports %s", t.Attr, e.caps),
		}
	}
	return nil
}

// write pushes the projection of st selected by t.Attr into the field.
// The target must already have passed checkTarget.
func (r *Registry) write(reaction string, t ir.Target, st ir.FieldState) ir.Mutation {
	f := r.fields[t.Field].field
	m := ir.Mutation{Reaction: reaction, Field: t.Field, Attr: t.Attr}

	switch t.Attr {
	case ir.AttrEnabled:
		f.(field.Enabler).SetEnabled(st.Enabled)
		m.Value = ir.Bool(st.Enabled)
	case ir.AttrRequired:
		f.(field.Requirer).SetRequired(st.Required)
		m.Value = ir.Bool(st.Required)
	case ir.AttrReload:
		dep := ir.OrNull(st.Value)
		f.(field.Reloader).Reload(dep)
		m.Value = dep
	}
	return m
}
