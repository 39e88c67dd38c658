package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_Deterministic(t *testing.T) {
	ev := NewEvent("date", "dateChanged", Date("2026-10-20"))

	id1, err := EventID("s1", 1, ev)
	require.NoError(t, err)
	id2, err := EventID("s1", 1, ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestEventID_Sensitivity(t *testing.T) {
	base := NewEvent("date", "dateChanged", Date("2026-10-20"))
	id, err := EventID("s1", 1, base)
	require.NoError(t, err)

	variants := []struct {
		name    string
		session string
		seq     int64
		ev      Event
	}{
		{"session", "s2", 1, base},
		{"seq", "s1", 2, base},
		{"source", "s1", 1, NewEvent("other", "dateChanged", Date("2026-10-20"))},
		{"kind", "s1", 1, NewEvent("date", "dateCleared", Date("2026-10-20"))},
		{"payload", "s1", 1, NewEvent("date", "dateChanged", Date("2026-10-21"))},
		{"payload type", "s1", 1, NewEvent("date", "dateChanged", Text("2026-10-20"))},
	}
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			other, err := EventID(v.session, v.seq, v.ev)
			require.NoError(t, err)
			assert.NotEqual(t, id, other)
		})
	}
}
