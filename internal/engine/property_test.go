package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/testutil"
)

var genValue = rapid.OneOf(
	rapid.Just[ir.Value](ir.Null{}),
	rapid.Map(rapid.Bool(), func(b bool) ir.Value { return ir.Bool(b) }),
	rapid.Map(rapid.Int64Range(-3, 3), func(i int64) ir.Value { return ir.Int(i) }),
	rapid.Map(rapid.StringMatching(`[a-c]{0,2}`), func(s string) ir.Value { return ir.Text(s) }),
)

var genAttr = rapid.SampledFrom([]ir.Attr{ir.AttrEnabled, ir.AttrRequired, ir.AttrReload})

var genTransform = rapid.SampledFrom([]string{TransformCopy, TransformNot, TransformPayload})

// TestCoordinator_EmitIdempotent checks that emitting the same event twice
// leaves the same field states as emitting it once, for any table of pure
// reactions over registered fields.
func TestCoordinator_EmitIdempotent(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		numFields := rapid.IntRange(1, 5).Draw(r, "numFields")
		reg := NewRegistry()
		probes := make([]*testutil.Probe, numFields)
		ids := make([]ir.FieldID, numFields)
		for i := range probes {
			ids[i] = ir.FieldID(fmt.Sprintf("f%d", i))
			probes[i] = testutil.NewProbe(genValue.Draw(r, "initial"))
			if err := reg.Register(ids[i], probes[i]); err != nil {
				r.Fatalf("register: %v", err)
			}
		}
		genID := rapid.SampledFrom(ids)

		numReactions := rapid.IntRange(0, 6).Draw(r, "numReactions")
		specs := make([]ir.ReactionSpec, numReactions)
		for i := range specs {
			reads := rapid.SliceOfN(genID, 0, 2).Draw(r, "reads")
			writes := make([]ir.Target, rapid.IntRange(0, 3).Draw(r, "numWrites"))
			for j := range writes {
				writes[j] = ir.Target{Field: genID.Draw(r, "write"), Attr: genAttr.Draw(r, "attr")}
			}
			specs[i] = ir.ReactionSpec{
				ID:        fmt.Sprintf("r%d", i),
				On:        "k",
				Reads:     reads,
				Writes:    writes,
				Transform: genTransform.Draw(r, "transform"),
			}
		}
		rt, err := BuildRuleTable(nil, specs)
		if err != nil {
			r.Fatalf("build: %v", err)
		}
		c, err := New(reg, rt, WithLogger(testutil.DiscardLogger()))
		if err != nil {
			r.Fatalf("new: %v", err)
		}

		ev := ir.NewEvent("src", "k", genValue.Draw(r, "payload"))
		if err := c.Emit(ev); err != nil {
			r.Fatalf("first emit: %v", err)
		}
		once, err := reg.Snapshot(ids...)
		if err != nil {
			r.Fatalf("snapshot: %v", err)
		}
		if err := c.Emit(ev); err != nil {
			r.Fatalf("second emit: %v", err)
		}
		twice, err := reg.Snapshot(ids...)
		if err != nil {
			r.Fatalf("snapshot: %v", err)
		}
		require.Equal(r, once, twice)
	})
}

// TestRuleTable_PreservesInsertionOrder checks that ReactionsFor always
// returns reactions in the order they were added, per kind.
func TestRuleTable_PreservesInsertionOrder(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		kinds := rapid.SliceOfN(rapid.SampledFrom([]ir.EventKind{"a", "b", "c"}), 1, 20).Draw(r, "kinds")
		rt := NewRuleTable()
		want := map[ir.EventKind][]string{}
		for i, k := range kinds {
			id := fmt.Sprintf("r%d", i)
			if err := rt.AddReaction(k, Reaction{ID: id, Apply: noop}); err != nil {
				r.Fatalf("add: %v", err)
			}
			want[k] = append(want[k], id)
		}
		for k, ids := range want {
			got := rt.ReactionsFor(k)
			gotIDs := make([]string, len(got))
			for i, rr := range got {
				gotIDs[i] = rr.ID
			}
			require.Equal(r, ids, gotIDs)
		}
	})
}
