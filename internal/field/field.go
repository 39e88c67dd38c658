package field

import (
	"github.com/roach88/formsync/internal/ir"
)

// Field is anything registered with an engine registry. It must implement
// at least one of the capability interfaces below.
type Field any

// ValueReader exposes the field's current value.
type ValueReader interface {
	Value() ir.Value
}

// Enabler can be enabled or disabled.
type Enabler interface {
	SetEnabled(enabled bool)
}

// Requirer can be marked required or optional.
type Requirer interface {
	SetRequired(required bool)
}

// Reloader recomputes derived content from a dependency value
// (e.g. time-slot options from a date).
type Reloader interface {
	Reload(dependency ir.Value)
}

// StateReader exposes the full observable state. Fields that do not
// implement it are snapshotted from ValueReader alone, enabled and optional.
type StateReader interface {
	State() ir.FieldState
}

// Setter accepts an externally triggered value change.
// Implementations validate the value, store it and emit their bound event.
type Setter interface {
	Set(v ir.Value) error
}

// Restorer stores a value without emitting an event.
type Restorer interface {
	Restore(v ir.Value) error
}

// Emitter receives events produced by field triggers.
// *engine.Coordinator and *engine.Loop both satisfy it.
type Emitter interface {
	Emit(ev ir.Event) error
}

// Capabilities reports which capability interfaces f implements.
func Capabilities(f Field) ir.Capability {
	var caps ir.Capability
	if _, ok := f.(ValueReader); ok {
		caps |= ir.CapRead
	}
	if _, ok := f.(Enabler); ok {
		caps |= ir.CapEnable
	}
	if _, ok := f.(Requirer); ok {
		caps |= ir.CapRequire
	}
	if _, ok := f.(Reloader); ok {
		caps |= ir.CapReload
	}
	return caps
}

// StateOf returns the observable state of f.
func StateOf(f Field) ir.FieldState {
	if sr, ok := f.(StateReader); ok {
		return sr.State()
	}
	st := ir.FieldState{Value: ir.Null{}, Enabled: true}
	if vr, ok := f.(ValueReader); ok {
		st.Value = ir.OrNull(vr.Value())
	}
	return st
}

// base holds the state shared by the concrete kinds and the trigger plumbing.
// It deliberately implements none of the write capabilities; each kind opts in.
type base struct {
	id      ir.FieldID
	typ     ir.FieldType
	state   ir.FieldState
	emitter Emitter
	kind    ir.EventKind
}

func newBase(id ir.FieldID, typ ir.FieldType, initial ir.Value) base {
	return base{
		id:    id,
		typ:   typ,
		state: ir.FieldState{Value: ir.OrNull(initial), Enabled: true},
	}
}

// ID returns the field's identifier.
func (b *base) ID() ir.FieldID {
	return b.id
}

// State returns a copy of the field state.
func (b *base) State() ir.FieldState {
	return b.state
}

// Value returns the current value.
func (b *base) Value() ir.Value {
	return b.state.Value
}

// Bind connects the field's trigger to an emitter. Every accepted Set emits
// an event of the given kind with the new value as payload. An empty kind
// leaves the field silent.
func (b *base) Bind(e Emitter, kind ir.EventKind) {
	b.emitter = e
	b.kind = kind
}

// Type returns the field's declared type.
func (b *base) Type() ir.FieldType {
	return b.typ
}

// Restore stores v without emitting. Used when replaying a journaled event,
// whose dispatch is driven separately.
func (b *base) Restore(v ir.Value) error {
	coerced, err := Coerce(b.id, b.typ, v)
	if err != nil {
		return err
	}
	b.state.Value = coerced
	return nil
}

// trigger stores v and emits the bound event.
func (b *base) trigger(v ir.Value) error {
	b.state.Value = v
	if b.emitter == nil || b.kind == "" {
		return nil
	}
	return b.emitter.Emit(ir.NewEvent(b.id, b.kind, v))
}
