package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/formsync/internal/ir"
)

// CompileForm parses a CUE value into a FormSpec.
//
// The CUE value should be the form struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`form: order: { ... }`)
//	spec, err := CompileForm(v.LookupPath(cue.ParsePath("form.order")))
//
// Fields keep their declaration order. A field is enabled unless it sets
// enabled: false.
func CompileForm(v cue.Value) (*ir.FormSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.FormSpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	kinds, err := stringList(v, "kinds")
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, &CompileError{
			Field:   "kinds",
			Message: "at least one event kind is required",
			Pos:     v.Pos(),
		}
	}
	for _, k := range kinds {
		spec.Kinds = append(spec.Kinds, ir.EventKind(k))
	}

	fieldsVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "field",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		fs, err := parseField(ir.FieldID(iter.Label()), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Fields = append(spec.Fields, fs)
	}

	return spec, nil
}

// parseField parses one entry of a form's field struct.
func parseField(id ir.FieldID, v cue.Value) (ir.FieldSpec, error) {
	fs := ir.FieldSpec{ID: id, Initial: ir.Null{}, Enabled: true}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return fs, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("field %s: type is required", id),
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return fs, formatCUEError(err)
	}
	fs.Type = ir.FieldType(typ)

	if emitsVal := v.LookupPath(cue.ParsePath("emits")); emitsVal.Exists() {
		emits, err := emitsVal.String()
		if err != nil {
			return fs, formatCUEError(err)
		}
		fs.Emits = ir.EventKind(emits)
	}

	if initVal := v.LookupPath(cue.ParsePath("initial")); initVal.Exists() {
		fs.Initial, err = decodeValue(initVal)
		if err != nil {
			return fs, err
		}
	}

	if fs.Enabled, err = optionalBool(v, "enabled", true); err != nil {
		return fs, err
	}
	if fs.Required, err = optionalBool(v, "required", false); err != nil {
		return fs, err
	}
	return fs, nil
}

// decodeValue converts a concrete CUE value into an ir.Value.
// Floats are rejected; dates stay Text until the field type coerces them.
func decodeValue(v cue.Value) (ir.Value, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Text(s), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(i), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for iter.Next() {
			item, err := decodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "floats are not allowed",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind %s", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// stringList reads an optional list of strings at path.
func stringList(v cue.Value, path string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(path))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   path,
				Message: fmt.Sprintf("must be a list of strings: %v", err),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalBool(v cue.Value, path string, def bool) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(path))
	if !bv.Exists() {
		return def, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return def, formatCUEError(err)
	}
	return b, nil
}
