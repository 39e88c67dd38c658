package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/testutil"
)

// setEnabledNot writes enabled=!payload to every target.
func setEnabledNot(n int) ApplyFunc {
	return func(_ []ir.FieldState, payload ir.Value) ([]ir.FieldState, error) {
		out := make([]ir.FieldState, n)
		for i := range out {
			out[i].Enabled = !ir.Truthy(payload)
		}
		return out, nil
	}
}

func newTestCoordinator(t *testing.T, reg *Registry, rt *RuleTable, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.DiscardLogger()), WithSession("s1")}, opts...)
	c, err := New(reg, rt, opts...)
	require.NoError(t, err)
	return c
}

func TestCoordinator_NoReactionsIsNoop(t *testing.T) {
	reg := NewRegistry()
	p := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("p", p))
	rec := &Recorder{}
	c := newTestCoordinator(t, reg, NewRuleTable(), WithObserver(rec))

	d, err := c.EmitRecord(ir.NewEvent("p", "unhandled", ir.Bool(true)))
	require.NoError(t, err)
	assert.Zero(t, d.Seq)
	assert.Empty(t, p.EnableCalls)
	assert.Empty(t, rec.Dispatches())
	assert.Equal(t, int64(0), c.Clock().Current())
}

func TestCoordinator_UndeclaredKind(t *testing.T) {
	c := newTestCoordinator(t, NewRegistry(), NewRuleTable("known"))

	err := c.Emit(ir.NewEvent("p", "unknown", nil))
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	// Declared but empty is a no-op.
	assert.NoError(t, c.Emit(ir.NewEvent("p", "known", nil)))
}

func TestCoordinator_EnableToggle(t *testing.T) {
	reg := NewRegistry()
	date := testutil.NewProbe(nil)
	slot := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("date", date))
	require.NoError(t, reg.Register("slot", slot))

	rt := NewRuleTable("pickupChanged")
	require.NoError(t, rt.AddReaction("pickupChanged", Reaction{
		ID:     "pickup-disables-delivery",
		Writes: []ir.Target{{Field: "date", Attr: ir.AttrEnabled}, {Field: "slot", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(2),
	}))
	c := newTestCoordinator(t, reg, rt)

	require.NoError(t, c.Emit(ir.NewEvent("pickup", "pickupChanged", ir.Bool(true))))
	assert.False(t, date.Enabled)
	assert.False(t, slot.Enabled)

	require.NoError(t, c.Emit(ir.NewEvent("pickup", "pickupChanged", ir.Bool(false))))
	assert.True(t, date.Enabled)
	assert.True(t, slot.Enabled)
}

func TestCoordinator_ReloadCalledOnceWithPayload(t *testing.T) {
	reg := NewRegistry()
	date := testutil.NewProbe(ir.Date("2026-10-20"))
	slot := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("date", date))
	require.NoError(t, reg.Register("slot", slot))

	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("dateChanged", Reaction{
		ID:     "reload-slots",
		Reads:  []ir.FieldID{"date"},
		Writes: []ir.Target{{Field: "slot", Attr: ir.AttrReload}},
		Apply: func(states []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
			return []ir.FieldState{{Value: states[0].Value}}, nil
		},
	}))
	c := newTestCoordinator(t, reg, rt)

	d, err := c.EmitRecord(ir.NewEvent("date", "dateChanged", ir.Date("2026-10-20")))
	require.NoError(t, err)

	require.Len(t, slot.ReloadCalls, 1)
	assert.Equal(t, ir.Date("2026-10-20"), slot.ReloadCalls[0])
	require.Len(t, d.Mutations, 1)
	assert.Equal(t, ir.Mutation{Reaction: "reload-slots", Field: "slot", Attr: ir.AttrReload, Value: ir.Date("2026-10-20")}, d.Mutations[0])
}

func TestCoordinator_LaterReactionSeesEarlierWrites(t *testing.T) {
	reg := NewRegistry()
	a := testutil.NewProbe(nil)
	b := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("a", a))
	require.NoError(t, reg.Register("b", b))

	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "require-a",
		Writes: []ir.Target{{Field: "a", Attr: ir.AttrRequired}},
		Apply: func(_ []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
			return []ir.FieldState{{Required: true}}, nil
		},
	}))
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "mirror-a-into-b",
		Reads:  []ir.FieldID{"a"},
		Writes: []ir.Target{{Field: "b", Attr: ir.AttrRequired}},
		Apply: func(states []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
			return []ir.FieldState{{Required: states[0].Required}}, nil
		},
	}))
	c := newTestCoordinator(t, reg, rt)

	require.NoError(t, c.Emit(ir.NewEvent("x", "k", nil)))
	assert.True(t, b.Required)
}

func TestCoordinator_LastWriterWins(t *testing.T) {
	reg := NewRegistry()
	f := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("f", f))

	rt := NewRuleTable()
	for _, r := range []struct {
		id string
		v  bool
	}{{"first", false}, {"second", true}} {
		v := r.v
		require.NoError(t, rt.AddReaction("k", Reaction{
			ID:     r.id,
			Writes: []ir.Target{{Field: "f", Attr: ir.AttrEnabled}},
			Apply: func(_ []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
				return []ir.FieldState{{Enabled: v}}, nil
			},
		}))
	}
	c := newTestCoordinator(t, reg, rt)

	require.NoError(t, c.Emit(ir.NewEvent("x", "k", nil)))
	assert.Equal(t, []bool{false, true}, f.EnableCalls)
	assert.True(t, f.Enabled)
}

func TestCoordinator_UnknownFieldKeepsEarlierWrites(t *testing.T) {
	reg := NewRegistry()
	a := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("a", a))

	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "disable-a",
		Writes: []ir.Target{{Field: "a", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(1),
	}))
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "disable-ghost",
		Writes: []ir.Target{{Field: "a", Attr: ir.AttrRequired}, {Field: "ghost", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(2),
	}))
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "never-runs",
		Writes: []ir.Target{{Field: "a", Attr: ir.AttrReload}},
		Apply: func(_ []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
			return make([]ir.FieldState, 1), nil
		},
	}))
	require.NoError(t, rt.AddReaction("other", Reaction{
		ID:     "other",
		Writes: []ir.Target{{Field: "a", Attr: ir.AttrRequired}},
		Apply: func(_ []ir.FieldState, _ ir.Value) ([]ir.FieldState, error) {
			return []ir.FieldState{{Required: true}}, nil
		},
	}))
	rec := &Recorder{}
	c := newTestCoordinator(t, reg, rt, WithObserver(rec))

	d, err := c.EmitRecord(ir.NewEvent("x", "k", ir.Bool(true)))
	require.Error(t, err)
	assert.True(t, IsUnknownField(err))
	assert.True(t, IsConfiguration(err))

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "disable-ghost", de.Reaction)
	assert.Equal(t, 1, de.Applied)

	var ue *UnknownFieldError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, ir.FieldID("ghost"), ue.Field)
	assert.Equal(t, "disable-ghost", ue.Reaction)

	// First reaction stays applied; the failing one wrote nothing.
	assert.False(t, a.Enabled)
	assert.Empty(t, a.RequireCalls)
	assert.Empty(t, a.ReloadCalls)
	assert.Len(t, d.Mutations, 1)
	assert.NotEmpty(t, d.Err)
	require.Len(t, rec.Dispatches(), 1)

	// The coordinator is still usable.
	require.NoError(t, c.Emit(ir.NewEvent("x", "other", nil)))
	assert.True(t, a.Required)
}

func TestCoordinator_UnknownReadField(t *testing.T) {
	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:    "reads-ghost",
		Reads: []ir.FieldID{"ghost"},
		Apply: noop,
	}))
	c := newTestCoordinator(t, NewRegistry(), rt)

	err := c.Emit(ir.NewEvent("x", "k", nil))
	var ue *UnknownFieldError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "reads-ghost", ue.Reaction)
}

func TestCoordinator_Reentrant(t *testing.T) {
	reg := NewRegistry()
	slot := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("slot", slot))

	rt := NewRuleTable()
	var c *Coordinator
	var nested error
	require.NoError(t, rt.AddReaction("outer", Reaction{
		ID:     "emits-again",
		Writes: []ir.Target{{Field: "slot", Attr: ir.AttrReload}},
		Apply: func(_ []ir.FieldState, payload ir.Value) ([]ir.FieldState, error) {
			nested = c.Emit(ir.NewEvent("slot", "outer", payload))
			return nil, nested
		},
	}))
	c = newTestCoordinator(t, reg, rt)

	err := c.Emit(ir.NewEvent("x", "outer", ir.Int(1)))
	require.Error(t, err)
	assert.True(t, IsReentrant(nested))
	assert.True(t, IsReentrant(err))

	var re *ReentrantDispatchError
	require.ErrorAs(t, nested, &re)
	assert.Equal(t, ir.EventKind("outer"), re.Active)
	assert.Empty(t, slot.ReloadCalls)

	// Guard is released after the failed dispatch.
	assert.False(t, c.dispatching.Load())
	assert.NoError(t, c.Emit(ir.NewEvent("x", "unrelated", nil)))
}

func TestCoordinator_ReentrantFromFieldReload(t *testing.T) {
	reg := NewRegistry()
	slot := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("slot", slot))

	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("dateChanged", Reaction{
		ID:     "reload",
		Writes: []ir.Target{{Field: "slot", Attr: ir.AttrReload}},
		Apply: func(_ []ir.FieldState, p ir.Value) ([]ir.FieldState, error) {
			return []ir.FieldState{{Value: p}}, nil
		},
	}))
	c := newTestCoordinator(t, reg, rt)

	var nested error
	slot.OnReload = func(ir.Value) {
		nested = c.Emit(ir.NewEvent("slot", "dateChanged", nil))
	}

	require.NoError(t, c.Emit(ir.NewEvent("date", "dateChanged", ir.Date("2026-10-20"))))
	assert.True(t, IsReentrant(nested))
	assert.Len(t, slot.ReloadCalls, 1)

	// Next emit works.
	require.NoError(t, c.Emit(ir.NewEvent("date", "dateChanged", ir.Date("2026-10-21"))))
	assert.Len(t, slot.ReloadCalls, 2)
}

func TestCoordinator_NewRejectsMissingCapability(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("ro", &testutil.ReadOnly{}))

	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "enable-ro",
		Writes: []ir.Target{{Field: "ro", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(1),
	}))

	_, err := New(reg, rt)
	require.Error(t, err)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "enable-ro", ce.Reaction)
	assert.Equal(t, ir.FieldID("ro"), ce.Field)
}

func TestCoordinator_CapabilityCheckedAtDispatch(t *testing.T) {
	reg := NewRegistry()
	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "enable-late",
		Writes: []ir.Target{{Field: "late", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(1),
	}))
	c := newTestCoordinator(t, reg, rt)

	// Registered after construction, without the enable capability.
	require.NoError(t, reg.Register("late", &testutil.ReadOnly{}))

	err := c.Emit(ir.NewEvent("x", "k", nil))
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsUnknownField(err))
}

func TestCoordinator_ApplyWrongArity(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("f", testutil.NewProbe(nil)))
	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "short",
		Writes: []ir.Target{{Field: "f", Attr: ir.AttrEnabled}},
		Apply:  noop,
	}))
	c := newTestCoordinator(t, reg, rt)

	err := c.Emit(ir.NewEvent("x", "k", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply returned 0 states for 1 writes")
}

func TestCoordinator_ApplyErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID: "fails",
		Apply: func([]ir.FieldState, ir.Value) ([]ir.FieldState, error) {
			return nil, boom
		},
	}))
	c := newTestCoordinator(t, NewRegistry(), rt)

	err := c.Emit(ir.NewEvent("x", "k", nil))
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsConfiguration(err))
}

func TestCoordinator_DispatchRecord(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("f", testutil.NewProbe(nil)))
	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "r",
		Writes: []ir.Target{{Field: "f", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(1),
	}))
	rec := &Recorder{}
	c := newTestCoordinator(t, reg, rt, WithObserver(rec), WithClock(NewClockAt(10)))

	d1, err := c.EmitRecord(ir.NewEvent("src", "k", ir.Bool(true)))
	require.NoError(t, err)
	d2, err := c.EmitRecord(ir.NewEvent("src", "k", ir.Bool(true)))
	require.NoError(t, err)

	assert.Equal(t, int64(11), d1.Seq)
	assert.Equal(t, int64(12), d2.Seq)
	assert.Equal(t, "s1", d1.Session)
	assert.Len(t, d1.ID, 64)
	assert.NotEqual(t, d1.ID, d2.ID, "seq is part of the event id")
	assert.Equal(t, []ir.Dispatch{d1, d2}, rec.Dispatches())
	assert.Equal(t, ir.Mutation{Reaction: "r", Field: "f", Attr: ir.AttrEnabled, Value: ir.Bool(false)}, rec.Mutations()[0])
}

func TestCoordinator_ObserverErrorDoesNotFailEmit(t *testing.T) {
	reg := NewRegistry()
	f := testutil.NewProbe(nil)
	require.NoError(t, reg.Register("f", f))
	rt := NewRuleTable()
	require.NoError(t, rt.AddReaction("k", Reaction{
		ID:     "r",
		Writes: []ir.Target{{Field: "f", Attr: ir.AttrEnabled}},
		Apply:  setEnabledNot(1),
	}))
	failing := ObserverFunc(func(ir.Dispatch) error { return errors.New("disk full") })
	c := newTestCoordinator(t, reg, rt, WithObserver(failing))

	require.NoError(t, c.Emit(ir.NewEvent("x", "k", ir.Bool(true))))
	assert.False(t, f.Enabled)
}

func TestNew_NilArguments(t *testing.T) {
	_, err := New(nil, NewRuleTable())
	assert.True(t, IsConfiguration(err))

	_, err = New(NewRegistry(), nil)
	assert.True(t, IsConfiguration(err))
}
