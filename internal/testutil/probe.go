package testutil

import (
	"io"
	"log/slog"

	"github.com/roach88/formsync/internal/ir"
)

// Probe is a test field implementing every capability. It records each
// capability call so tests can assert exactly what a dispatch did.
type Probe struct {
	Val      ir.Value
	Enabled  bool
	Required bool

	EnableCalls  []bool
	RequireCalls []bool
	ReloadCalls  []ir.Value

	// OnReload, when set, runs inside Reload (e.g. to attempt a nested emit).
	OnReload func(dep ir.Value)
}

// NewProbe creates an enabled, optional probe holding v.
func NewProbe(v ir.Value) *Probe {
	return &Probe{Val: ir.OrNull(v), Enabled: true}
}

// Value implements field.ValueReader.
func (p *Probe) Value() ir.Value {
	return p.Val
}

// State implements field.StateReader.
func (p *Probe) State() ir.FieldState {
	return ir.FieldState{Value: p.Val, Enabled: p.Enabled, Required: p.Required}
}

// SetEnabled implements field.Enabler.
func (p *Probe) SetEnabled(enabled bool) {
	p.Enabled = enabled
	p.EnableCalls = append(p.EnableCalls, enabled)
}

// SetRequired implements field.Requirer.
func (p *Probe) SetRequired(required bool) {
	p.Required = required
	p.RequireCalls = append(p.RequireCalls, required)
}

// Reload implements field.Reloader.
func (p *Probe) Reload(dep ir.Value) {
	p.ReloadCalls = append(p.ReloadCalls, dep)
	if p.OnReload != nil {
		p.OnReload(dep)
	}
}

// ReadOnly is a field with only the read capability.
type ReadOnly struct {
	Val ir.Value
}

// Value implements field.ValueReader.
func (r *ReadOnly) Value() ir.Value {
	return ir.OrNull(r.Val)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
