package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/formsync/internal/ir"
)

// Result is everything declared in one CUE value.
type Result struct {
	Forms     []ir.FormSpec
	Reactions []ir.ReactionSpec
}

// Form returns the form named name. An empty name selects the only form.
func (r *Result) Form(name string) (ir.FormSpec, error) {
	if name == "" {
		if len(r.Forms) != 1 {
			return ir.FormSpec{}, fmt.Errorf("%d forms declared, name one of them", len(r.Forms))
		}
		return r.Forms[0], nil
	}
	for _, f := range r.Forms {
		if f.Name == name {
			return f, nil
		}
	}
	return ir.FormSpec{}, fmt.Errorf("form %q not declared", name)
}

// Compile extracts every form.<name> and reaction.<id> from v.
//
// With failFast the first error is returned alone; otherwise all compile
// errors are collected and the successfully compiled parts are returned.
func Compile(v cue.Value, failFast bool) (*Result, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	res := &Result{}
	var errs []error

	collect := func(section string, fn func(cue.Value) error) bool {
		sv := v.LookupPath(cue.ParsePath(section))
		if !sv.Exists() {
			return true
		}
		iter, err := sv.Fields()
		if err != nil {
			errs = append(errs, formatCUEError(err))
			return !failFast
		}
		for iter.Next() {
			if err := fn(iter.Value()); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", section, iter.Label(), err))
				if failFast {
					return false
				}
			}
		}
		return true
	}

	ok := collect("form", func(fv cue.Value) error {
		spec, err := CompileForm(fv)
		if err != nil {
			return err
		}
		res.Forms = append(res.Forms, *spec)
		return nil
	})
	if !ok {
		return res, errs
	}
	collect("reaction", func(rv cue.Value) error {
		spec, err := CompileReaction(rv)
		if err != nil {
			return err
		}
		res.Reactions = append(res.Reactions, *spec)
		return nil
	})

	if len(res.Forms) == 0 && len(res.Reactions) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no forms or reactions declared"))
	}
	return res, errs
}

// CompileString compiles CUE source text. filename is used in positions.
func CompileString(filename, src string) (*Result, []error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v, false)
}
