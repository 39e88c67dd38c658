package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/compiler"
	"github.com/roach88/formsync/internal/ir"
	"github.com/roach88/formsync/internal/orderform"
	"github.com/roach88/formsync/internal/session"
	"github.com/roach88/formsync/internal/testutil"
)

func TestLoadSpecs_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "order.cue", orderform.Source)

	res, errs := LoadSpecs(path, LoadModeCollectAll)
	require.Empty(t, errs)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.FileCount)
	require.Len(t, res.Forms, 1)
	assert.Equal(t, orderform.FormName, res.Forms[0].Name)
	assert.Len(t, res.Reactions, 3)
}

func TestLoadSpecs_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "form.cue", "package rules\n"+toggleRules)

	res, errs := LoadSpecs(dir, LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 1, res.FileCount)
	require.Len(t, res.Forms, 1)
	assert.Equal(t, "toggle", res.Forms[0].Name)
	require.Len(t, res.Reactions, 1)
	assert.Equal(t, "require-note", res.Reactions[0].ID)
}

func TestLoadSpecs_LoadFailures(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0755))
	notCUE := writeFile(t, dir, "rules.yaml", "form: {}\n")
	broken := writeFile(t, dir, "broken.cue", "form: order: {\n")

	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing", filepath.Join(dir, "nope"), ErrCodeNotFound},
		{"empty directory", empty, ErrCodeNoFiles},
		{"not a cue file", notCUE, ErrCodeNoFiles},
		{"syntax error", broken, ErrCodeBuildFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, errs := LoadSpecs(tt.path, LoadModeCollectAll)
			assert.Nil(t, res)
			require.Len(t, errs, 1)
			var loadErr *LoadError
			require.True(t, errors.As(errs[0], &loadErr))
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoadSpecs_CompileErrors(t *testing.T) {
	src := `
form: a: {
	kinds: ["k"]
	field: x: {type: "checkbox", emits: "k"}
}
reaction: bad1: {on: "k", reads: ["x"], writes: []}
reaction: bad2: {on: "k", reads: ["x"], writes: []}
`
	path := writeFile(t, t.TempDir(), "bad.cue", src)

	res, errs := LoadSpecs(path, LoadModeCollectAll)
	require.NotNil(t, res)
	assert.Len(t, res.Forms, 1)
	require.Len(t, errs, 2)

	_, failFast := LoadSpecs(path, LoadModeFailFast)
	assert.Len(t, failFast, 1)
}

func TestLoadRuleSet_Builtin(t *testing.T) {
	for _, path := range []string{"", "builtin:order"} {
		rules, err := LoadRuleSet(path, "")
		require.NoError(t, err)
		assert.True(t, rules.Builtin())
		assert.Equal(t, orderform.FormName, rules.Form.Name)
		assert.Len(t, rules.Reactions, 3)
	}

	_, err := LoadRuleSet("", "checkout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `not "checkout"`)
}

func TestLoadRuleSet_CUEFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "toggle.cue", toggleRules)

	rules, err := LoadRuleSet(path, "")
	require.NoError(t, err)
	assert.False(t, rules.Builtin())
	assert.Equal(t, toggleRules, rules.Source)

	sess, err := rules.Build(session.Config{ID: "rs-1", Logger: testutil.DiscardLogger()})
	require.NoError(t, err)
	require.NoError(t, sess.Change("flag", ir.Bool(true)))

	st, err := sess.State("note")
	require.NoError(t, err)
	assert.True(t, st.Required)
}

func TestLoadRuleSet_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRuleSet(filepath.Join(dir, "missing.cue"), "")
	require.Error(t, err)

	empty := writeFile(t, dir, "empty.cue", "")
	_, err = LoadRuleSet(empty, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty rules file")

	guarded, err := os.ReadFile("../harness/testdata/rules/guarded.cue")
	require.NoError(t, err)
	_, err = ParseRuleSet("guarded.cue", string(guarded), "")
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, compiler.ErrUnknownReadField, loadErr.Code)
}

func TestParseRuleSet_SelectsForm(t *testing.T) {
	src := toggleRules + `
form: other: {
	kinds: ["otherChanged"]
	field: box: {type: "checkbox", emits: "otherChanged", initial: false}
}
`
	_, err := ParseRuleSet("two.cue", src, "")
	require.Error(t, err, "two forms need a name")

	rules, err := ParseRuleSet("two.cue", src, "toggle")
	require.NoError(t, err)
	assert.Equal(t, "toggle", rules.Form.Name)
	assert.Len(t, rules.Reactions, 1)

	rules, err = ParseRuleSet("two.cue", src, "other")
	require.NoError(t, err)
	assert.Empty(t, rules.Reactions)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"field":   compiler.ErrFormNoFields,
		"kinds":   compiler.ErrFormNoKinds,
		"type":    compiler.ErrUnknownFieldType,
		"value":   compiler.ErrInvalidInitial,
		"on":      compiler.ErrUndeclaredTrigger,
		"writes":  compiler.ErrReactionNoWrites,
		"unknown": ErrCodeGeneric,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}
