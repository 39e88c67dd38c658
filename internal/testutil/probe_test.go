package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/formsync/internal/ir"
)

func TestProbe_RecordsCalls(t *testing.T) {
	p := NewProbe(ir.Text("x"))

	p.SetEnabled(false)
	p.SetRequired(true)
	p.Reload(ir.Date("2026-10-16"))

	assert.Equal(t, []bool{false}, p.EnableCalls)
	assert.Equal(t, []bool{true}, p.RequireCalls)
	assert.Equal(t, []ir.Value{ir.Date("2026-10-16")}, p.ReloadCalls)
	assert.Equal(t, ir.FieldState{Value: ir.Text("x"), Enabled: false, Required: true}, p.State())
}

func TestProbe_NilValueIsNull(t *testing.T) {
	assert.Equal(t, ir.Null{}, NewProbe(nil).Value())
	assert.Equal(t, ir.Null{}, (&ReadOnly{}).Value())
}

func TestFixedSessionGenerator_AlwaysSame(t *testing.T) {
	g := NewFixedSessionGenerator("session-1")
	assert.Equal(t, "session-1", g.Generate())
	assert.Equal(t, "session-1", g.Generate())
}
