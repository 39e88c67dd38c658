package engine

import (
	"slices"
	"sync"

	"github.com/roach88/formsync/internal/ir"
)

// Observer receives a record of every dispatch that ran at least one
// reaction. Observers run synchronously after the dispatch, in registration
// order. An observer error is logged and does not fail the Emit call; the
// field writes have already happened.
type Observer interface {
	ObserveDispatch(d ir.Dispatch) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d ir.Dispatch) error

// ObserveDispatch calls f(d).
func (f ObserverFunc) ObserveDispatch(d ir.Dispatch) error {
	return f(d)
}

// Recorder is an in-memory Observer that keeps every dispatch.
type Recorder struct {
	mu         sync.Mutex
	dispatches []ir.Dispatch
}

// ObserveDispatch appends d.
func (r *Recorder) ObserveDispatch(d ir.Dispatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = append(r.dispatches, d)
	return nil
}

// Dispatches returns the recorded dispatches in order.
func (r *Recorder) Dispatches() []ir.Dispatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dispatches)
}

// Mutations flattens all recorded mutations in order.
func (r *Recorder) Mutations() []ir.Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.Mutation
	for _, d := range r.dispatches {
		out = append(out, d.Mutations...)
	}
	return out
}
