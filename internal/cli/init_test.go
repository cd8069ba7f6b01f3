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

// testMarketCUE is the market every CLI test seeds: two assets, both
// lendable, one pool, two funded accounts.
const testMarketCUE = `market: {
	name: "clitest"

	assets: {
		USDC: decimals: 6
		WETH: decimals: 18
	}

	lending: reserves: {
		USDC: ltv_bps: 8000
		WETH: ltv_bps: 7000
	}

	swap: pools: [{
		asset0:       "USDC"
		asset1:       "WETH"
		fee_bps:      30
		tick_spacing: 60
		reserve0:     1_000_000
		reserve1:     1_000_000
	}]

	accounts: {
		alice: balances: USDC: 10_000_000
		bob: balances: WETH: 5_000_000
	}
}
`

func writeTestMarket(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "market.cue")
	require.NoError(t, os.WriteFile(path, []byte(testMarketCUE), 0644))
	return path
}

// seedTestMarket writes the test market into dir and seeds a database
// from it, returning the database path.
func seedTestMarket(t *testing.T, dir string) string {
	t.Helper()
	marketPath := writeTestMarket(t, dir)
	dbPath := filepath.Join(dir, "market.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: dbPath, Format: "text"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{marketPath})
	require.NoError(t, cmd.Execute(), "seed market: %s", buf.String())

	return dbPath
}

func TestInitSeedsMarket(t *testing.T) {
	dir := t.TempDir()
	marketPath := writeTestMarket(t, dir)
	dbPath := filepath.Join(dir, "market.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: dbPath, Format: "text"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{marketPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Market \"clitest\" seeded")
	assert.Contains(t, output, "Assets:   2")
	assert.Contains(t, output, "Accounts: 2")
	assert.Contains(t, output, "Reserves: 2")
	assert.Contains(t, output, "Pools:    1")

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file should exist")
}

func TestInitJSON(t *testing.T) {
	dir := t.TempDir()
	marketPath := writeTestMarket(t, dir)
	dbPath := filepath.Join(dir, "market.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: dbPath, Format: "json"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{marketPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "clitest", data["name"])
	assert.Equal(t, float64(2), data["assets"])
	assert.Equal(t, float64(1), data["pools"])
}

func TestInitRefusesExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := seedTestMarket(t, dir)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: dbPath, Format: "text"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(dir, "market.cue")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitForceReseeds(t *testing.T) {
	dir := t.TempDir()
	dbPath := seedTestMarket(t, dir)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: dbPath, Format: "text"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(dir, "market.cue"), "--force"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Market \"clitest\" seeded")

	// A re-seed replaces the database rather than doubling balances.
	balBuf := &bytes.Buffer{}
	balCmd := NewBalancesCommand(&RootOptions{DBPath: dbPath, Format: "text"})
	balCmd.SetOut(balBuf)
	balCmd.SetArgs([]string{"alice"})
	require.NoError(t, balCmd.Execute())
	assert.Contains(t, balBuf.String(), "10000000")
	assert.NotContains(t, balBuf.String(), "20000000")
}

func TestInitRejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "bad.cue")
	bad := `market: {
	name: "bad"

	assets: {
		USDC: decimals: 42
	}

	accounts: {
		alice: balances: USDC: 1_000
	}
}
`
	require.NoError(t, os.WriteFile(badPath, []byte(bad), 0644))
	dbPath := filepath.Join(dir, "market.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: dbPath, Format: "text"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{badPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Validation failed")

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "no database should be left behind")
}

func TestInitMissingManifest(t *testing.T) {
	dir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{DBPath: filepath.Join(dir, "market.db"), Format: "text"}
	cmd := NewInitCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(dir, "missing.cue")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
