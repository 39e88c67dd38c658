package field

import (
	"github.com/roach88/formsync/internal/ir"
)

// Bindable is implemented by every concrete kind in this package.
type Bindable interface {
	ID() ir.FieldID
	Bind(e Emitter, kind ir.EventKind)
}

// New builds the concrete field declared by spec. slots is used by
// timeslot fields; nil selects DefaultSlots.
//
// The spec's Enabled/Required flags are applied through the field's own
// capabilities, so a flag the kind cannot express is ignored.
func New(spec ir.FieldSpec, slots SlotProvider) (Field, error) {
	var f Field
	var err error

	switch spec.Type {
	case ir.FieldTypeDate:
		f, err = NewDateSelector(spec.ID, spec.Initial)
	case ir.FieldTypeTimeSlot:
		f, err = NewTimeSlotSelector(spec.ID, spec.Initial, slots)
	case ir.FieldTypeCheckbox:
		f, err = NewCheckbox(spec.ID, spec.Initial)
	case ir.FieldTypeText:
		f, err = NewTextInput(spec.ID, spec.Initial)
	default:
		return nil, &ValueError{Field: spec.ID, Type: spec.Type, Message: "unknown field type"}
	}
	if err != nil {
		return nil, err
	}

	if e, ok := f.(Enabler); ok {
		e.SetEnabled(spec.Enabled)
	}
	if r, ok := f.(Requirer); ok {
		r.SetRequired(spec.Required)
	}
	return f, nil
}
