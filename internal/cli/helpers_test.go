package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// executeRoot runs the full command tree, so config loading and logger
// setup happen as they do for a user. Returns stdout.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// jsonResponse mirrors CLIResponse with the payload left raw.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// decodeResponse parses a JSON response and decodes its data into data.
func decodeResponse(t *testing.T, out string, data any) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

// fieldRow is the JSON shape of session.FieldState.
type fieldRow struct {
	ID       string `json:"id"`
	Value    any    `json:"value"`
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"required"`
}

func findField(t *testing.T, rows []fieldRow, id string) fieldRow {
	t.Helper()
	for _, r := range rows {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("field %s not in output", id)
	return fieldRow{}
}

const deliveryCommands = `
- change: date
  value: "2026-10-20"
- change: timeSlot
  value: "18:00-21:00"
- change: recipient
  value: true
`

const pickupCommands = `
- change: pickup
  value: true
`

// toggleRules is a minimal CUE rule set with one reaction.
const toggleRules = `
form: toggle: {
	kinds: ["flagChanged"]
	field: {
		flag: {type: "checkbox", emits: "flagChanged", initial: false}
		note: {type: "text", initial: ""}
	}
}

reaction: "require-note": {
	on:     "flagChanged"
	reads:  ["flag"]
	writes: ["note.required"]
	transform: "copy"
}
`
