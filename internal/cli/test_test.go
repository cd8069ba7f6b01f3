package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScenarioYAML = `name: cli-deposit
description: A prefunded deposit settles into the lending pool.
market: market.cue
setup:
  - transfer:
      from: alice
      to: engine
      asset: USDC
      amount: 1000
invocations:
  - caller: alice
    batch:
      - deposit:
          asset: USDC
          amount: 1000
`

// writeScenarioDir lays out a scenarios directory with the shared test
// market and one passing scenario.
func writeScenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestMarket(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli-deposit.yaml"), []byte(testScenarioYAML), 0644))
	return dir
}

func runTestCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := writeScenarioDir(t)

	output, err := runTestCommand(t, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ cli-deposit (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "cli-deposit.golden")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"cli-deposit"`)
	assert.Contains(t, string(data), `"pool:lending"`)
}

func TestTestCommandPassesAgainstGolden(t *testing.T) {
	dir := writeScenarioDir(t)

	_, err := runTestCommand(t, dir, "--update")
	require.NoError(t, err)

	output, err := runTestCommand(t, dir)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ cli-deposit")
	assert.Contains(t, output, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestTestCommandDetectsGoldenMismatch(t *testing.T) {
	dir := writeScenarioDir(t)

	_, err := runTestCommand(t, dir, "--update")
	require.NoError(t, err)

	goldenPath := filepath.Join(dir, "golden", "cli-deposit.golden")
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario":"tampered"}`), 0644))

	output, err := runTestCommand(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ cli-deposit")
	assert.Contains(t, output, "Golden file mismatch")
	assert.Contains(t, output, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandWithoutGoldenUsesExpectations(t *testing.T) {
	dir := writeScenarioDir(t)

	output, err := runTestCommand(t, dir)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ cli-deposit")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestTestCommandReportsFailedExpectation(t *testing.T) {
	dir := t.TempDir()
	writeTestMarket(t, dir)

	// Nothing staged for the engine, so the deposit aborts while the
	// scenario expects success.
	failing := `name: cli-starved
description: Deposit without staged funds.
market: market.cue
invocations:
  - caller: alice
    batch:
      - deposit:
          asset: USDC
          amount: 1000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli-starved.yaml"), []byte(failing), 0644))

	output, err := runTestCommand(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ cli-starved")
	assert.Contains(t, output, "expected success")
	assert.Contains(t, output, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarioDir(t)

	other := `name: cli-empty
description: An empty batch settles trivially.
market: market.cue
invocations:
  - caller: alice
    batch: []
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli-empty.yaml"), []byte(other), 0644))

	output, err := runTestCommand(t, dir, "--filter", "cli-empty")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ cli-empty")
	assert.NotContains(t, output, "cli-deposit")
	assert.Contains(t, output, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandNoScenarios(t *testing.T) {
	dir := t.TempDir()

	output, err := runTestCommand(t, dir)
	require.NoError(t, err)
	assert.Contains(t, output, "No scenarios found.")
}

func TestTestCommandMissingDirectory(t *testing.T) {
	_, err := runTestCommand(t, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandJSON(t *testing.T) {
	dir := writeScenarioDir(t)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(1), data["total"])
}

func TestGoldenFilePath(t *testing.T) {
	path := goldenFilePath(filepath.Join("scenarios", "swap-floor.yaml"))
	assert.Equal(t, filepath.Join("scenarios", "golden", "swap-floor.golden"), path)

	path = goldenFilePath(filepath.Join("scenarios", "nested", "deposit.yml"))
	assert.Equal(t, filepath.Join("scenarios", "nested", "golden", "deposit.golden"), path)
}
