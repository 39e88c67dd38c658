package harness

import (
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/session"
)

// TraceEvent is one journaled dispatch in native form.
type TraceEvent struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Payload   any             `json:"payload"`
	Mutations []TraceMutation `json:"mutations"`
	Error     string          `json:"error,omitempty"`
}

// TraceMutation is one write within a TraceEvent.
type TraceMutation struct {
	Reaction string `json:"reaction"`
	Field    string `json:"field"`
	Attr     string `json:"attr"`
	Value    any    `json:"value"`
}

// FieldSnapshot is a field's final state in native form.
type FieldSnapshot struct {
	Field       string `json:"field"`
	Value       any    `json:"value"`
	Enabled     bool   `json:"enabled"`
	Required    bool   `json:"required"`
	ReloadCount int    `json:"reload_count,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as expected and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every journaled dispatch in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds every field's final state in declaration order.
	State []FieldSnapshot `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  []FieldSnapshot{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddDispatch appends a dispatch to the trace.
func (r *Result) AddDispatch(d ir.Dispatch) {
	muts := make([]TraceMutation, len(d.Mutations))
	for i, m := range d.Mutations {
		muts[i] = TraceMutation{
			Reaction: m.Reaction,
			Field:    string(m.Field),
			Attr:     string(m.Attr),
			Value:    ir.ToNative(m.Value),
		}
	}
	r.Trace = append(r.Trace, TraceEvent{
		Seq:       d.Seq,
		Kind:      string(d.Event.Kind),
		Source:    string(d.Event.Source),
		Payload:   ir.ToNative(d.Event.Payload),
		Mutations: muts,
		Error:     d.Err,
	})
}

// AddState appends a field's final state.
func (r *Result) AddState(st session.FieldState, reloads int) {
	r.State = append(r.State, FieldSnapshot{
		Field:       string(st.ID),
		Value:       ir.ToNative(st.Value),
		Enabled:     st.Enabled,
		Required:    st.Required,
		ReloadCount: reloads,
	})
}

// FieldState returns the final state of a field.
func (r *Result) FieldState(id string) (FieldSnapshot, bool) {
	for _, s := range r.State {
		if s.Field == id {
			return s, true
		}
	}
	return FieldSnapshot{}, false
}
