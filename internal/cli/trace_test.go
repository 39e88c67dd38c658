package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSession journals deliveryCommands under id and returns the db path.
func seedSession(t *testing.T, dir, id string) string {
	t.Helper()
	db := filepath.Join(dir, "f.db")
	input := writeFile(t, dir, id+".yaml", deliveryCommands)
	_, err := runRunCommand(t, &RunOptions{}, "--db", db, "--session", id, "--input", input)
	require.NoError(t, err)
	return db
}

func runTraceCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTrace_ListSessions(t *testing.T) {
	dir := t.TempDir()
	db := seedSession(t, dir, "trace-a")
	seedSession(t, dir, "trace-b")

	out, err := runTraceCommand(t, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "2 session(s):")
	assert.Contains(t, out, "trace-a  form=order rules=built-in last_seq=2")
	assert.Contains(t, out, "trace-b")
}

func TestTrace_ListSessionsEmpty(t *testing.T) {
	out, err := runTraceCommand(t, "text", "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found in database.")

	out, err = runTraceCommand(t, "json", "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "ok", resp.Status)
}

func TestTrace_Timeline(t *testing.T) {
	db := seedSession(t, t.TempDir(), "trace-1")

	out, err := runTraceCommand(t, "text", "--db", db, "--session", "trace-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Session: trace-1 (form order)")
	assert.Contains(t, out, "Timeline:")
	assert.Contains(t, out, "[1] dateChanged from date")
	assert.Contains(t, out, "[2] recipientChanged from recipient = true")
	assert.Contains(t, out, "require-recipient-contact: name.required = true")
	assert.Contains(t, out, "Stats: 2 dispatch(es), 3 mutation(s), 0 error(s)")
}

func TestTrace_KindFilterJSON(t *testing.T) {
	db := seedSession(t, t.TempDir(), "trace-2")

	out, err := runTraceCommand(t, "json", "--db", db, "--session", "trace-2", "--kind", "recipientChanged")
	require.NoError(t, err)

	var result struct {
		Timeline   []struct{ Seq int64 } `json:"timeline"`
		Provenance []ProvenanceEdge      `json:"provenance"`
		Stats      TraceStats            `json:"stats"`
	}
	decodeResponse(t, out, &result)
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, int64(2), result.Timeline[0].Seq)
	assert.Equal(t, TraceStats{Dispatches: 1, Mutations: 2, LastSeq: 2}, result.Stats)
	require.Len(t, result.Provenance, 2)
	assert.Equal(t, "name.required", result.Provenance[0].Target)
	assert.Equal(t, "phone.required", result.Provenance[1].Target)
	assert.Equal(t, "require-recipient-contact", result.Provenance[1].Reaction)
}

func TestTrace_KindFilterNoMatches(t *testing.T) {
	db := seedSession(t, t.TempDir(), "trace-3")

	out, err := runTraceCommand(t, "text", "--db", db, "--session", "trace-3", "--kind", "pickupChanged")
	require.NoError(t, err)
	assert.Contains(t, out, "Filter: pickupChanged")
	assert.Contains(t, out, "No dispatches.")
}

func TestTrace_UnknownSession(t *testing.T) {
	db := seedSession(t, t.TempDir(), "trace-4")

	out, err := runTraceCommand(t, "text", "--db", db, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestTrace_FieldFilter(t *testing.T) {
	db := seedSession(t, t.TempDir(), "trace-5")

	out, err := runTraceCommand(t, "json", "--db", db, "--session", "trace-5", "--field", "phone")
	require.NoError(t, err)

	var result struct {
		Timeline   []struct{ Seq int64 } `json:"timeline"`
		Provenance []ProvenanceEdge      `json:"provenance"`
	}
	decodeResponse(t, out, &result)
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, int64(2), result.Timeline[0].Seq)
	require.Len(t, result.Provenance, 1)
	assert.Equal(t, "phone.required", result.Provenance[0].Target)

	out, err = runTraceCommand(t, "text", "--db", db, "--session", "trace-5", "--field", "pickup")
	require.NoError(t, err)
	assert.Contains(t, out, "Field: pickup")
	assert.Contains(t, out, "No dispatches.")
}
