package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/formsync/internal/ir"
)

// CompileReaction parses a CUE value into a ReactionSpec.
//
// The CUE value should be the reaction struct itself, e.g.:
//
//	v := ctx.CompileString(`reaction: "reload-time-slots": { ... }`)
//	spec, err := CompileReaction(v.LookupPath(cue.ParsePath(`reaction."reload-time-slots"`)))
//
// Writes accept either "field.attr" strings or {field, attr} structs.
// A missing transform defaults to "copy".
func CompileReaction(v cue.Value) (*ir.ReactionSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ReactionSpec{Transform: "copy"}

	// `reaction "reload-time-slots"` → id is "reload-time-slots"
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	onVal := v.LookupPath(cue.ParsePath("on"))
	if !onVal.Exists() {
		return nil, &CompileError{
			Field:   "on",
			Message: "trigger kind is required",
			Pos:     v.Pos(),
		}
	}
	on, err := onVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.On = ir.EventKind(on)

	reads, err := stringList(v, "reads")
	if err != nil {
		return nil, err
	}
	for _, r := range reads {
		spec.Reads = append(spec.Reads, ir.FieldID(r))
	}

	spec.Writes, err = parseWrites(v)
	if err != nil {
		return nil, err
	}

	if tv := v.LookupPath(cue.ParsePath("transform")); tv.Exists() {
		spec.Transform, err = tv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}

	if vv := v.LookupPath(cue.ParsePath("value")); vv.Exists() {
		val, err := decodeValue(vv)
		if err != nil {
			return nil, err
		}
		spec.Params = map[string]ir.Value{"value": val}
	}

	return spec, nil
}

// parseWrites extracts the required, non-empty writes list.
func parseWrites(v cue.Value) ([]ir.Target, error) {
	writesVal := v.LookupPath(cue.ParsePath("writes"))
	if !writesVal.Exists() {
		return nil, &CompileError{
			Field:   "writes",
			Message: "writes is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := writesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var targets []ir.Target
	for iter.Next() {
		t, err := parseTarget(iter.Value())
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, &CompileError{
			Field:   "writes",
			Message: "at least one write is required",
			Pos:     writesVal.Pos(),
		}
	}
	return targets, nil
}

// parseTarget accepts "timeSlot.reload" or {field: "timeSlot", attr: "reload"}.
func parseTarget(v cue.Value) (ir.Target, error) {
	var fieldName, attrName string

	if s, err := v.String(); err == nil {
		i := strings.LastIndex(s, ".")
		if i <= 0 || i == len(s)-1 {
			return ir.Target{}, &CompileError{
				Field:   "writes",
				Message: fmt.Sprintf("invalid target %q, want \"field.attr\"", s),
				Pos:     v.Pos(),
			}
		}
		fieldName, attrName = s[:i], s[i+1:]
	} else {
		fv := v.LookupPath(cue.ParsePath("field"))
		av := v.LookupPath(cue.ParsePath("attr"))
		if !fv.Exists() || !av.Exists() {
			return ir.Target{}, &CompileError{
				Field:   "writes",
				Message: "target needs field and attr",
				Pos:     v.Pos(),
			}
		}
		if fieldName, err = fv.String(); err != nil {
			return ir.Target{}, formatCUEError(err)
		}
		if attrName, err = av.String(); err != nil {
			return ir.Target{}, formatCUEError(err)
		}
	}

	attr, err := ir.ParseAttr(attrName)
	if err != nil {
		return ir.Target{}, &CompileError{
			Field:   "writes",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return ir.Target{Field: ir.FieldID(fieldName), Attr: attr}, nil
}
