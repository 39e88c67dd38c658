package compiler

import (
	"fmt"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/field"
	"github.com/roach88/formsync/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// FormSpec errors (E101-E109)
	ErrFormNoFields     = "E101" // at least one field required
	ErrDuplicateFieldID = "E102" // field declared twice
	ErrUnknownFieldType = "E103" // type not one of date/timeslot/checkbox/text
	ErrUndeclaredEmit   = "E104" // field emits a kind the form does not declare
	ErrDuplicateKind    = "E105" // kind declared twice
	ErrInvalidInitial   = "E106" // initial value rejected by the field type
	ErrFormNoKinds      = "E107" // at least one kind required

	// ReactionSpec errors (E110-E119)
	ErrUndeclaredTrigger = "E110" // trigger kind not declared by the form
	ErrUnknownReadField  = "E111" // reads a field the form does not declare
	ErrUnknownWriteField = "E112" // writes a field the form does not declare
	ErrMissingCapability = "E113" // write attr unsupported by the field type
	ErrUnknownTransform  = "E114" // transform is not a built-in
	ErrConstWithoutValue = "E115" // const transform needs value
	ErrDuplicateReaction = "E116" // reaction id declared twice
	ErrReactionNoWrites  = "E117" // at least one write required
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a form and the reactions wired to it.
// Returns all errors found (does not fail-fast).
//
// Every reaction's trigger kind must be declared by the form, so a rule set
// can never listen for a kind the form cannot emit.
func Validate(form ir.FormSpec, reactions []ir.ReactionSpec) []ValidationError {
	errs := validateForm(form)

	types := make(map[ir.FieldID]ir.FieldType, len(form.Fields))
	for _, f := range form.Fields {
		types[f.ID] = f.Type
	}

	seen := make(map[string]bool, len(reactions))
	for _, r := range reactions {
		errs = append(errs, validateReaction(form, types, r)...)
		if seen[r.ID] {
			errs = append(errs, ValidationError{
				Field:   "reaction." + r.ID,
				Message: "reaction declared twice",
				Code:    ErrDuplicateReaction,
			})
		}
		seen[r.ID] = true
	}
	return errs
}

func validateForm(form ir.FormSpec) []ValidationError {
	var errs []ValidationError
	path := "form." + form.Name

	if len(form.Kinds) == 0 {
		errs = append(errs, ValidationError{Field: path + ".kinds", Message: "at least one event kind is required", Code: ErrFormNoKinds})
	}
	kinds := make(map[ir.EventKind]bool, len(form.Kinds))
	for _, k := range form.Kinds {
		if kinds[k] {
			errs = append(errs, ValidationError{
				Field:   path + ".kinds",
				Message: fmt.Sprintf("kind %q declared twice", k),
				Code:    ErrDuplicateKind,
			})
		}
		kinds[k] = true
	}

	if len(form.Fields) == 0 {
		errs = append(errs, ValidationError{Field: path + ".field", Message: "at least one field is required", Code: ErrFormNoFields})
	}
	ids := make(map[ir.FieldID]bool, len(form.Fields))
	for _, f := range form.Fields {
		fpath := fmt.Sprintf("%s.field.%s", path, f.ID)
		if ids[f.ID] {
			errs = append(errs, ValidationError{Field: fpath, Message: "field declared twice", Code: ErrDuplicateFieldID})
		}
		ids[f.ID] = true

		if _, ok := ir.FieldTypeCapabilities[f.Type]; !ok {
			errs = append(errs, ValidationError{
				Field:   fpath + ".type",
				Message: fmt.Sprintf("unknown type %q, must be \"date\", \"timeslot\", \"checkbox\", or \"text\"", f.Type),
				Code:    ErrUnknownFieldType,
			})
			continue
		}
		if f.Emits != "" && !kinds[f.Emits] {
			errs = append(errs, ValidationError{
				Field:   fpath + ".emits",
				Message: fmt.Sprintf("kind %q is not declared by the form", f.Emits),
				Code:    ErrUndeclaredEmit,
			})
		}
		if _, err := field.Coerce(f.ID, f.Type, f.Initial); err != nil {
			errs = append(errs, ValidationError{Field: fpath + ".initial", Message: err.Error(), Code: ErrInvalidInitial})
		}
	}
	return errs
}

func validateReaction(form ir.FormSpec, types map[ir.FieldID]ir.FieldType, r ir.ReactionSpec) []ValidationError {
	var errs []ValidationError
	path := "reaction." + r.ID

	if !form.HasKind(r.On) {
		errs = append(errs, ValidationError{
			Field:   path + ".on",
			Message: fmt.Sprintf("kind %q is not declared by form %s", r.On, form.Name),
			Code:    ErrUndeclaredTrigger,
		})
	}

	for _, id := range r.Reads {
		if _, ok := types[id]; !ok {
			errs = append(errs, ValidationError{
				Field:   path + ".reads",
				Message: fmt.Sprintf("field %q is not declared", id),
				Code:    ErrUnknownReadField,
			})
		}
	}

	if len(r.Writes) == 0 {
		errs = append(errs, ValidationError{Field: path + ".writes", Message: "at least one write is required", Code: ErrReactionNoWrites})
	}
	for _, w := range r.Writes {
		typ, ok := types[w.Field]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   path + ".writes",
				Message: fmt.Sprintf("field %q is not declared", w.Field),
				Code:    ErrUnknownWriteField,
			})
			continue
		}
		caps := ir.FieldTypeCapabilities[typ]
		if need := w.Attr.Capability(); need == 0 || !caps.Has(need) {
			errs = append(errs, ValidationError{
				Field:   path + ".writes",
				Message: fmt.Sprintf("%s: %s field supports %s", w, typ, caps),
				Code:    ErrMissingCapability,
			})
		}
	}

	transform := r.Transform
	if transform == "" {
		transform = engine.TransformCopy
	}
	if _, ok := engine.Transforms[transform]; !ok {
		errs = append(errs, ValidationError{
			Field:   path + ".transform",
			Message: fmt.Sprintf("unknown transform %q, must be one of %v", r.Transform, engine.TransformNames()),
			Code:    ErrUnknownTransform,
		})
	} else if transform == engine.TransformConst {
		if _, ok := r.Params["value"]; !ok {
			errs = append(errs, ValidationError{Field: path + ".value", Message: "const transform requires value", Code: ErrConstWithoutValue})
		}
	}
	return errs
}
