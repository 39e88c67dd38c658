package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: pickup_disables_delivery
description: "Pickup disables the delivery fields"
rules: builtin:order
session: cli-pass
steps:
  - change: pickup
    value: true
assertions:
  - type: field_state
    field: date
    expect: { enabled: false }
  - type: trace_count
    kind: pickupChanged
    count: 1
`

const failingScenario = `name: wrong_expectation
description: "Expects delivery to stay enabled"
rules: builtin:order
session: cli-fail
steps:
  - change: pickup
    value: true
assertions:
  - type: field_state
    field: date
    expect: { enabled: true }
`

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// scenarioDir lays out root/scenarios with the given files and returns
// the scenarios directory.
func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", "../harness/testdata/scenarios", "--base", "../harness")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ order_delivery")
	assert.Contains(t, out, "✓ order_cue_rules")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_Passing(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"pass.yaml": passingScenario})

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ pickup_disables_delivery")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTest_FailingAssertion(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"pass.yaml": passingScenario,
		"fail.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	for _, s := range result.Scenarios {
		if s.Name == "wrong_expectation" {
			assert.False(t, s.Pass)
			assert.NotEmpty(t, s.Errors)
		}
	}
}

func TestTest_UpdateThenMatchGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"pass.yaml": passingScenario})
	golden := filepath.Join(filepath.Dir(dir), "golden", "pickup_disables_delivery.golden")

	out, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "pickup_disables_delivery (golden updated)")
	assert.FileExists(t, golden)

	out, err = runTestCommand(t, "json", dir)
	require.NoError(t, err)
	var result TestResult
	decodeResponse(t, out, &result)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "match", result.Scenarios[0].Golden)
}

func TestTest_GoldenMismatch(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"pass.yaml": passingScenario})
	goldenDir := t.TempDir()
	writeFile(t, goldenDir, "pickup_disables_delivery.golden", `{"scenario_name":"stale"}`)

	out, err := runTestCommand(t, "text", dir, "--golden", goldenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ pickup_disables_delivery")
	assert.Contains(t, out, "trace does not match golden file")

	data, err := os.ReadFile(filepath.Join(goldenDir, "pickup_disables_delivery.golden"))
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"stale"}`, string(data))
}

func TestTest_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"pass.yaml": passingScenario,
		"fail.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "text", dir, "--filter", "pa*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_expectation")

	out, err = runTestCommand(t, "text", dir, "--filter", "zzz*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_UnloadableScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\nsteps: [\n"})

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTest_MissingDirectory(t *testing.T) {
	out, err := runTestCommand(t, "text", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
