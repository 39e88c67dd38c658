package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Kind: "dateChanged", Source: "date", Payload: "2026-10-20", Mutations: []TraceMutation{
			{Reaction: "reload", Field: "timeSlot", Attr: "reload", Value: "2026-10-20"},
		}},
		{Seq: 2, Kind: "pickupChanged", Source: "pickup", Payload: true, Mutations: []TraceMutation{
			{Reaction: "pickup", Field: "date", Attr: "enabled", Value: false},
			{Reaction: "pickup", Field: "timeSlot", Attr: "enabled", Value: false},
		}},
		{Seq: 3, Kind: "pickupChanged", Source: "pickup", Payload: false, Mutations: []TraceMutation{
			{Reaction: "pickup", Field: "date", Attr: "enabled", Value: true},
			{Reaction: "pickup", Field: "timeSlot", Attr: "enabled", Value: true},
		}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Kind: "dateChanged"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Kind: "pickupChanged", Field: "timeSlot", Attr: "enabled"}))

	err := assertTraceContains(trace, Assertion{Kind: "dateChanged", Field: "date"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch of dateChanged writing date")
	assert.Contains(t, err.Error(), "Full trace:")

	assert.Error(t, assertTraceContains(trace, Assertion{Kind: "recipientChanged"}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Kinds: []string{"dateChanged", "pickupChanged"}}))

	err := assertTraceOrder(trace, Assertion{Kinds: []string{"pickupChanged", "dateChanged"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Kinds: []string{"dateChanged", "recipientChanged"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing kind: recipientChanged")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: "pickupChanged", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Field: "timeSlot", Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Field: "timeSlot", Attr: "reload", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Kind: "pickupChanged", Field: "date", Count: 2}))

	err := assertTraceCount(trace, Assertion{Kind: "pickupChanged", Field: "date", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences of pickupChanged writes to date")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertFieldState(t *testing.T) {
	result := NewResult()
	result.State = []FieldSnapshot{
		{Field: "date", Value: "2026-10-20", Enabled: false},
		{Field: "timeSlot", Value: nil, Enabled: true, ReloadCount: 2},
		{Field: "count", Value: int64(3), Enabled: true},
	}

	assert.NoError(t, assertFieldState(result, Assertion{Field: "date", Expect: map[string]any{"value": "2026-10-20", "enabled": false}}))
	assert.NoError(t, assertFieldState(result, Assertion{Field: "timeSlot", Expect: map[string]any{"value": nil}}))
	assert.NoError(t, assertFieldState(result, Assertion{Field: "count", Expect: map[string]any{"value": 3}}))

	err := assertFieldState(result, Assertion{Field: "date", Expect: map[string]any{"required": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date.required = true")

	err = assertFieldState(result, Assertion{Field: "ghost", Expect: map[string]any{"enabled": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field not in session")

	assert.NoError(t, assertReloadCount(result, Assertion{Field: "timeSlot", Count: 2}))
	assert.Error(t, assertReloadCount(result, Assertion{Field: "timeSlot", Count: 1}))
	assert.Error(t, assertReloadCount(result, Assertion{Field: "ghost"}))
}

func TestAssertJournalRow(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.WriteSession(ctx, store.Session{ID: "s1", Form: "order"}))
	for seq, payload := range []bool{true, false} {
		ev := ir.NewEvent("pickup", "pickupChanged", ir.Bool(payload))
		id, err := ir.EventID("s1", int64(seq+1), ev)
		require.NoError(t, err)
		_, err = st.WriteDispatch(ctx, ir.Dispatch{ID: id, Session: "s1", Seq: int64(seq + 1), Event: ev})
		require.NoError(t, err)
	}

	assert.NoError(t, assertJournalRow(ctx, st, Assertion{
		Table:  "dispatches",
		Where:  map[string]any{"seq": 2},
		Expect: map[string]any{"kind": "pickupChanged", "session_id": "s1", "seq": 2},
	}))

	err = assertJournalRow(ctx, st, Assertion{
		Table:  "dispatches",
		Where:  map[string]any{"kind": "pickupChanged"},
		Expect: map[string]any{"source": "pickup"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	err = assertJournalRow(ctx, st, Assertion{
		Table:  "dispatches",
		Where:  map[string]any{"seq": 9},
		Expect: map[string]any{"kind": "pickupChanged"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")

	err = assertJournalRow(ctx, st, Assertion{
		Table:  "dispatches",
		Where:  map[string]any{"seq = 1 OR 1": 1},
		Expect: map[string]any{"kind": "pickupChanged"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")

	err = assertJournalRow(ctx, st, Assertion{
		Table:  "sessions",
		Expect: map[string]any{"colour": "red"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not present in result columns")
}

func TestEvaluateAssertions_JournalRowNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertJournalRow, Table: "sessions", Expect: map[string]any{"id": "x"}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
