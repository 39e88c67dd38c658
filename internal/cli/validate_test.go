package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/orderform"
)

func runValidateCommand(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewValidateCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), diag.String(), err
}

func TestValidate_OrderFormReportsCascade(t *testing.T) {
	path := writeFile(t, t.TempDir(), "order.cue", orderform.Source)

	out, _, err := runValidateCommand(t, &RootOptions{Format: "text"}, path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All rules valid")
	assert.Contains(t, out, "[info] pickupChanged -> dateChanged")
}

func TestValidate_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "order.cue", orderform.Source)

	out, _, err := runValidateCommand(t, &RootOptions{Format: "json"}, path)
	require.NoError(t, err)

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Cascades, 1)
	assert.Equal(t, []string{"pickupChanged", "dateChanged"}, result.Cascades[0].Path)
}

func TestValidate_InvalidRules(t *testing.T) {
	guarded, err := os.ReadFile("../harness/testdata/rules/guarded.cue")
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "guarded.cue", string(guarded))

	out, _, err := runValidateCommand(t, &RootOptions{Format: "json"}, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, compiler.ErrUnknownReadField, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Field, "reaction.require-missing")
	assert.Equal(t, compiler.ErrUnknownReadField, resp.Error.Code)
}

func TestValidate_TextErrors(t *testing.T) {
	src := `
form: a: {
	kinds: ["k", "k"]
	field: x: {type: "checkbox", emits: "k"}
}
`
	path := writeFile(t, t.TempDir(), "dup.cue", src)

	out, _, err := runValidateCommand(t, &RootOptions{Format: "text"}, path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrDuplicateKind)
}

func TestValidate_CompileErrorsBecomeValidationErrors(t *testing.T) {
	src := `
form: a: {
	kinds: ["k"]
	field: x: {type: "checkbox", emits: "k"}
}
reaction: r: {on: "k", reads: ["x"], writes: []}
`
	path := writeFile(t, t.TempDir(), "bad.cue", src)

	result, err := ValidateRules(path)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, compiler.ErrReactionNoWrites, result.Errors[0].Code)
	assert.Equal(t, "load", result.Errors[0].Field)
	assert.Positive(t, result.Errors[0].Line)
}

func TestValidate_ReactionClaimedByNoForm(t *testing.T) {
	src := toggleRules + `
form: other: {
	kinds: ["otherChanged"]
	field: box: {type: "checkbox", emits: "otherChanged", initial: false}
}
reaction: orphan: {on: "nobodyChanged", reads: ["box"], writes: ["box.enabled"]}
`
	path := writeFile(t, t.TempDir(), "multi.cue", src)

	result, err := ValidateRules(path)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, compiler.ErrUndeclaredTrigger, result.Errors[0].Code)
	assert.Equal(t, "reaction.orphan", result.Errors[0].Field)
}

func TestValidate_VerboseGoesToStderr(t *testing.T) {
	path := writeFile(t, t.TempDir(), "order.cue", orderform.Source)

	out, diag, err := runValidateCommand(t, &RootOptions{Format: "json", Verbose: true}, path)
	require.NoError(t, err)
	assert.NotContains(t, out, "Validating form")
	assert.Contains(t, diag, "Validating form: order")
}

func TestValidate_MissingPath(t *testing.T) {
	_, err := ValidateRules(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	out, _, err := runValidateCommand(t, &RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}
