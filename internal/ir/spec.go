package ir

// FieldType names a concrete field kind a form can declare.
type FieldType string

const (
	FieldTypeDate     FieldType = "date"
	FieldTypeTimeSlot FieldType = "timeslot"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeText     FieldType = "text"
)

// FieldTypeCapabilities maps each declarable field type to the capability
// set its concrete implementation provides.
var FieldTypeCapabilities = map[FieldType]Capability{
	FieldTypeDate:     CapRead | CapEnable,
	FieldTypeTimeSlot: CapRead | CapEnable | CapReload,
	FieldTypeCheckbox: CapRead,
	FieldTypeText:     CapRead | CapRequire,
}

// FormSpec is a compiled form declaration.
type FormSpec struct {
	Name   string      `json:"name"`
	Kinds  []EventKind `json:"kinds"`
	Fields []FieldSpec `json:"fields"`
}

// FieldSpec declares one field of a form.
type FieldSpec struct {
	ID       FieldID   `json:"id"`
	Type     FieldType `json:"type"`
	Emits    EventKind `json:"emits,omitempty"` // Kind emitted when the field changes
	Initial  Value     `json:"initial"`
	Enabled  bool      `json:"enabled"`
	Required bool      `json:"required"`
}

// HasKind reports whether kind is declared by the form.
func (f FormSpec) HasKind(kind EventKind) bool {
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Field returns the declared field with the given ID.
func (f FormSpec) Field(id FieldID) (FieldSpec, bool) {
	for _, fs := range f.Fields {
		if fs.ID == id {
			return fs, true
		}
	}
	return FieldSpec{}, false
}

// ReactionSpec is a compiled, declarative reaction.
//
// Transform names a built-in apply function (see engine.Transforms); Params
// carries its arguments (e.g. {"value": true} for "const").
type ReactionSpec struct {
	ID        string           `json:"id"`
	On        EventKind        `json:"on"`
	Reads     []FieldID        `json:"reads"`
	Writes    []Target         `json:"writes"`
	Transform string           `json:"transform"`
	Params    map[string]Value `json:"params,omitempty"`
}
