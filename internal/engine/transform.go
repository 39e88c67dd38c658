package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/formsync/internal/ir"
)

// TransformFunc computes the single value written to every target of a
// declarative reaction. params are the reaction's static parameters.
type TransformFunc func(reads []ir.FieldState, payload ir.Value, params map[string]ir.Value) (ir.Value, error)

// Built-in transform names.
const (
	TransformCopy    = "copy"
	TransformNot     = "not"
	TransformPayload = "payload"
	TransformConst   = "const"
)

// Transforms is the registry of built-in transforms.
var Transforms = map[string]TransformFunc{
	// copy: value of the first read, or the payload when there are no reads.
	TransformCopy: func(reads []ir.FieldState, payload ir.Value, _ map[string]ir.Value) (ir.Value, error) {
		if len(reads) == 0 {
			return ir.OrNull(payload), nil
		}
		return ir.OrNull(reads[0].Value), nil
	},
	// not: boolean negation of what copy would produce.
	TransformNot: func(reads []ir.FieldState, payload ir.Value, _ map[string]ir.Value) (ir.Value, error) {
		src := payload
		if len(reads) > 0 {
			src = reads[0].Value
		}
		return ir.Bool(!ir.Truthy(src)), nil
	},
	TransformPayload: func(_ []ir.FieldState, payload ir.Value, _ map[string]ir.Value) (ir.Value, error) {
		return ir.OrNull(payload), nil
	},
	TransformConst: func(_ []ir.FieldState, _ ir.Value, params map[string]ir.Value) (ir.Value, error) {
		v, ok := params["value"]
		if !ok {
			return nil, fmt.Errorf("const transform requires a %q param", "value")
		}
		return ir.OrNull(v), nil
	},
}

// TransformNames returns the built-in transform names, sorted.
func TransformNames() []string {
	names := make([]string, 0, len(Transforms))
	for n := range Transforms {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// BuildReaction turns a declarative ReactionSpec into an executable Reaction.
//
// The transform's value is projected onto each write by attribute:
// enabled and required take its truthiness, reload takes the value itself.
func BuildReaction(spec ir.ReactionSpec) (Reaction, error) {
	name := spec.Transform
	if name == "" {
		name = TransformCopy
	}
	fn, ok := Transforms[name]
	if !ok {
		return Reaction{}, &ConfigurationError{
			Reaction: spec.ID,
			Message:  fmt.Sprintf("unknown transform %q (have %v)", name, TransformNames()),
		}
	}
	if name == TransformConst {
		if _, ok := spec.Params["value"]; !ok {
			return Reaction{}, &ConfigurationError{Reaction: spec.ID, Message: "const transform requires a value param"}
		}
	}

	writes := slices.Clone(spec.Writes)
	params := spec.Params

	return Reaction{
		ID:     spec.ID,
		Reads:  slices.Clone(spec.Reads),
		Writes: writes,
		Apply: func(states []ir.FieldState, payload ir.Value) ([]ir.FieldState, error) {
			v, err := fn(states, payload, params)
			if err != nil {
				return nil, err
			}
			out := make([]ir.FieldState, len(writes))
			for i, w := range writes {
				switch w.Attr {
				case ir.AttrEnabled:
					out[i].Enabled = ir.Truthy(v)
				case ir.AttrRequired:
					out[i].Required = ir.Truthy(v)
				default:
					out[i].Value = v
				}
			}
			return out, nil
		},
	}, nil
}

// BuildRuleTable builds a table declaring kinds and holding specs in order.
func BuildRuleTable(kinds []ir.EventKind, specs []ir.ReactionSpec) (*RuleTable, error) {
	t := NewRuleTable(kinds...)
	for _, s := range specs {
		r, err := BuildReaction(s)
		if err != nil {
			return nil, err
		}
		if err := t.AddReaction(s.On, r); err != nil {
			return nil, err
		}
	}
	return t, nil
}
