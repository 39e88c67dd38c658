package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/orderform"
)

func TestAnalyzeCascades_OrderForm(t *testing.T) {
	warnings := AnalyzeCascades(orderform.Form(), orderform.ReactionSpecs())

	// Disabling the date field does not dispatch dateChanged.
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Level)
	assert.Equal(t, []string{"pickupChanged", "dateChanged"}, warnings[0].Path)
}

func TestAnalyzeCascades_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCascades(ir.FormSpec{}, nil))
}

func TestAnalyzeCascades_OneHop(t *testing.T) {
	form := ir.FormSpec{
		Kinds: []ir.EventKind{"a", "b"},
		Fields: []ir.FieldSpec{
			{ID: "x", Type: ir.FieldTypeTimeSlot, Emits: "b"},
		},
	}
	reactions := []ir.ReactionSpec{
		{ID: "r1", On: "a", Writes: []ir.Target{{Field: "x", Attr: ir.AttrReload}}},
	}

	warnings := AnalyzeCascades(form, reactions)
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Level)
	assert.Equal(t, []string{"a", "b"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "reaction r1 writes x.reload")
}

func TestAnalyzeCascades_Loop(t *testing.T) {
	form := ir.FormSpec{
		Kinds: []ir.EventKind{"a", "b"},
		Fields: []ir.FieldSpec{
			{ID: "x", Type: ir.FieldTypeTimeSlot, Emits: "b"},
			{ID: "y", Type: ir.FieldTypeTimeSlot, Emits: "a"},
		},
	}
	reactions := []ir.ReactionSpec{
		{ID: "r1", On: "a", Writes: []ir.Target{{Field: "x", Attr: ir.AttrEnabled}}},
		{ID: "r2", On: "b", Writes: []ir.Target{{Field: "y", Attr: ir.AttrEnabled}}},
	}

	warnings := AnalyzeCascades(form, reactions)
	require.Len(t, warnings, 3)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
	assert.Equal(t, "info", warnings[1].Level)
}

func TestAnalyzeCascades_SelfLoop(t *testing.T) {
	form := ir.FormSpec{
		Kinds:  []ir.EventKind{"a"},
		Fields: []ir.FieldSpec{{ID: "x", Type: ir.FieldTypeTimeSlot, Emits: "a"}},
	}
	reactions := []ir.ReactionSpec{
		{ID: "r1", On: "a", Writes: []ir.Target{{Field: "x", Attr: ir.AttrReload}}},
	}

	warnings := AnalyzeCascades(form, reactions)
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"a", "a"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
}
