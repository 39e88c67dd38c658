package field

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/formsync/internal/ir"
)

// DateSelector holds the chosen delivery date.
// Capabilities: read, enable.
type DateSelector struct {
	base
}

// NewDateSelector creates a date selector. initial may be Null.
func NewDateSelector(id ir.FieldID, initial ir.Value) (*DateSelector, error) {
	v, err := Coerce(id, ir.FieldTypeDate, initial)
	if err != nil {
		return nil, err
	}
	return &DateSelector{base: newBase(id, ir.FieldTypeDate, v)}, nil
}

// SetEnabled enables or disables the selector.
func (d *DateSelector) SetEnabled(enabled bool) {
	d.state.Enabled = enabled
}

// Date returns the selected date, or "" when nothing is selected.
func (d *DateSelector) Date() ir.Date {
	date, _ := d.state.Value.(ir.Date)
	return date
}

// Set selects a date (Date or ISO Text) and emits the bound event.
func (d *DateSelector) Set(v ir.Value) error {
	coerced, err := Coerce(d.id, ir.FieldTypeDate, v)
	if err != nil {
		return err
	}
	return d.trigger(coerced)
}

// TimeSlotSelector offers the delivery windows available for a date.
// Capabilities: read, enable, reload.
type TimeSlotSelector struct {
	base
	slots   SlotProvider
	options ir.List
	reloads int
}

// NewTimeSlotSelector creates a time-slot selector whose options are derived
// by slots on every reload. initial may be Null.
func NewTimeSlotSelector(id ir.FieldID, initial ir.Value, slots SlotProvider) (*TimeSlotSelector, error) {
	v, err := Coerce(id, ir.FieldTypeTimeSlot, initial)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = DefaultSlots()
	}
	return &TimeSlotSelector{base: newBase(id, ir.FieldTypeTimeSlot, v), slots: slots, options: ir.List{}}, nil
}

// SetEnabled enables or disables the selector.
func (t *TimeSlotSelector) SetEnabled(enabled bool) {
	t.state.Enabled = enabled
}

// Reload recomputes the option list for a dependency date. A selection that
// is no longer offered is cleared. Non-date dependencies yield no options.
func (t *TimeSlotSelector) Reload(dependency ir.Value) {
	t.reloads++

	date, ok := dependency.(ir.Date)
	if !ok {
		t.options = ir.List{}
	} else {
		t.options = t.slots.Slots(date)
	}

	if !t.offers(t.state.Value) {
		t.state.Value = ir.Null{}
	}
}

// Options returns the currently offered slots.
func (t *TimeSlotSelector) Options() ir.List {
	out := make(ir.List, len(t.options))
	copy(out, t.options)
	return out
}

// ReloadCount reports how many times Reload has been called.
func (t *TimeSlotSelector) ReloadCount() int {
	return t.reloads
}

// Set selects one of the offered slots (or Null to clear) and emits the
// bound event.
func (t *TimeSlotSelector) Set(v ir.Value) error {
	coerced, err := Coerce(t.id, ir.FieldTypeTimeSlot, v)
	if err != nil {
		return err
	}
	if !t.offers(coerced) {
		return &ValueError{Field: t.id, Type: ir.FieldTypeTimeSlot, Message: fmt.Sprintf("slot %v is not offered", ir.ToNative(coerced))}
	}
	return t.trigger(coerced)
}

func (t *TimeSlotSelector) offers(v ir.Value) bool {
	if _, isNull := ir.OrNull(v).(ir.Null); isNull {
		return true
	}
	for _, opt := range t.options {
		if ir.Equal(opt, v) {
			return true
		}
	}
	return false
}

// Checkbox is a boolean toggle (other recipient, pickup).
// Capabilities: read.
type Checkbox struct {
	base
}

// NewCheckbox creates a checkbox. A Null initial value is unchecked.
func NewCheckbox(id ir.FieldID, initial ir.Value) (*Checkbox, error) {
	v, err := Coerce(id, ir.FieldTypeCheckbox, initial)
	if err != nil {
		return nil, err
	}
	return &Checkbox{base: newBase(id, ir.FieldTypeCheckbox, v)}, nil
}

// Checked reports the checkbox state.
func (c *Checkbox) Checked() bool {
	return ir.Truthy(c.state.Value)
}

// Toggle sets the checkbox and emits the bound event.
func (c *Checkbox) Toggle(checked bool) error {
	return c.trigger(ir.Bool(checked))
}

// Set accepts a Bool and emits the bound event.
func (c *Checkbox) Set(v ir.Value) error {
	coerced, err := Coerce(c.id, ir.FieldTypeCheckbox, v)
	if err != nil {
		return err
	}
	return c.trigger(coerced)
}

// TextInput is free text (recipient name, phone).
// Capabilities: read, require.
type TextInput struct {
	base
}

// NewTextInput creates a text input. A Null initial value is "".
func NewTextInput(id ir.FieldID, initial ir.Value) (*TextInput, error) {
	v, err := Coerce(id, ir.FieldTypeText, initial)
	if err != nil {
		return nil, err
	}
	return &TextInput{base: newBase(id, ir.FieldTypeText, v)}, nil
}

// SetRequired marks the input required or optional.
func (t *TextInput) SetRequired(required bool) {
	t.state.Required = required
}

// Text returns the current text.
func (t *TextInput) Text() string {
	s, _ := t.state.Value.(ir.Text)
	return string(s)
}

// Set stores NFC-normalized text and emits the bound event.
func (t *TextInput) Set(v ir.Value) error {
	coerced, err := Coerce(t.id, ir.FieldTypeText, v)
	if err != nil {
		return err
	}
	return t.trigger(coerced)
}

// Coerce converts v into the canonical value for a field type.
//
//   - date: Date, ISO Text or Null
//   - timeslot: Text or Null
//   - checkbox: Bool; Null is false
//   - text: Text (NFC normalized, trimmed); Null is ""
func Coerce(id ir.FieldID, t ir.FieldType, v ir.Value) (ir.Value, error) {
	v = ir.OrNull(v)
	reject := func() (ir.Value, error) {
		return nil, &ValueError{Field: id, Type: t, Message: fmt.Sprintf("cannot accept %s value", ir.TypeName(v))}
	}

	switch t {
	case ir.FieldTypeDate:
		switch val := v.(type) {
		case ir.Null, ir.Date:
			return val, nil
		case ir.Text:
			d, err := ir.ParseDate(string(val))
			if err != nil {
				return nil, &ValueError{Field: id, Type: t, Message: err.Error()}
			}
			return d, nil
		}
		return reject()

	case ir.FieldTypeTimeSlot:
		switch val := v.(type) {
		case ir.Null, ir.Text:
			return val, nil
		}
		return reject()

	case ir.FieldTypeCheckbox:
		switch val := v.(type) {
		case ir.Null:
			return ir.Bool(false), nil
		case ir.Bool:
			return val, nil
		}
		return reject()

	case ir.FieldTypeText:
		switch val := v.(type) {
		case ir.Null:
			return ir.Text(""), nil
		case ir.Text:
			return ir.Text(strings.TrimSpace(norm.NFC.String(string(val)))), nil
		}
		return reject()

	default:
		return nil, &ValueError{Field: id, Type: t, Message: "unknown field type"}
	}
}
