package engine

import (
	"context"
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// RecordEmitter dispatches an event and returns its record.
// *Coordinator implements it; session.Session implements it by first
// restoring the source field's value.
type RecordEmitter interface {
	EmitRecord(ev ir.Event) (ir.Dispatch, error)
}

// Mismatch describes one dispatch whose replay diverged from the record.
type Mismatch struct {
	Seq      int64        `json:"seq"`
	Kind     ir.EventKind `json:"kind"`
	Expected ir.Dispatch  `json:"expected"`
	Actual   ir.Dispatch  `json:"actual"`
	Reason   string       `json:"reason"`
}

// ReplayResult summarizes a replay run.
type ReplayResult struct {
	Events     int        `json:"events"`
	Mutations  int        `json:"mutations"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Deterministic reports whether every dispatch reproduced its record.
func (r *ReplayResult) Deterministic() bool {
	return len(r.Mismatches) == 0
}

// Replay re-emits recorded events, in order, into a fresh session and
// compares each resulting dispatch with the record.
//
// Determinism follows from the dispatch model: reactions run in
// registration order over in-memory state, and the logical clock advances
// once per non-empty dispatch, so identical configuration and identical
// events give identical mutation sequences and seqs. Dispatch errors are
// part of the record: a journaled failure must fail again at the same
// reaction.
//
// Replay stops early only on context cancellation.
func Replay(ctx context.Context, target RecordEmitter, recorded []ir.Dispatch) (*ReplayResult, error) {
	res := &ReplayResult{}

	for _, want := range recorded {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		got, err := target.EmitRecord(want.Event)
		res.Events++
		res.Mutations += len(got.Mutations)

		if reason := compareDispatch(want, got, err); reason != "" {
			res.Mismatches = append(res.Mismatches, Mismatch{
				Seq:      want.Seq,
				Kind:     want.Event.Kind,
				Expected: want,
				Actual:   got,
				Reason:   reason,
			})
		}
	}
	return res, nil
}

func compareDispatch(want, got ir.Dispatch, err error) string {
	if (want.Err != "") != (err != nil) {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return fmt.Sprintf("expected error %q, got none", want.Err)
	}
	if want.Seq != got.Seq {
		return fmt.Sprintf("seq %d, got %d", want.Seq, got.Seq)
	}
	if len(want.Mutations) != len(got.Mutations) {
		return fmt.Sprintf("%d mutations, got %d", len(want.Mutations), len(got.Mutations))
	}
	for i := range want.Mutations {
		w, g := want.Mutations[i], got.Mutations[i]
		if w.Reaction != g.Reaction || w.Field != g.Field || w.Attr != g.Attr || !ir.Equal(ir.OrNull(w.Value), ir.OrNull(g.Value)) {
			return fmt.Sprintf("mutation %d: %s %s=%v, got %s %s=%v",
				i, w.Reaction, ir.Target{Field: w.Field, Attr: w.Attr}, ir.ToNative(w.Value),
				g.Reaction, ir.Target{Field: g.Field, Attr: g.Attr}, ir.ToNative(g.Value))
		}
	}
	return ""
}
