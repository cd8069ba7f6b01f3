package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevnetFile(t *testing.T) {
	m, errs := Load("testdata/devnet.cue")
	require.Empty(t, errs)

	assert.Equal(t, "devnet", m.Name)
	assert.Len(t, m.Assets, 2)
	assert.Len(t, m.Accounts, 2)
	assert.Len(t, m.Reserves, 2)
	assert.Len(t, m.Pools, 1)
	assert.Equal(t, uint64(1_000_000_000), m.Pools[0].Reserve0)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile("testdata/devnet.cue")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "market.cue"), src, 0o644))

	m, errs := Load(dir)
	require.Empty(t, errs)
	assert.Equal(t, "devnet", m.Name)
}

func TestLoadMissingPath(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}

func TestLoadNoMarketDeclaration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cue")
	require.NoError(t, os.WriteFile(path, []byte("other: 1\n"), 0o644))

	_, errs := Load(path)
	require.Len(t, errs, 1)

	var ce *CompileError
	require.ErrorAs(t, errs[0], &ce)
	assert.Equal(t, "market", ce.Field)
}

func TestLoadCollectsValidationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
market: {
	assets: USDC: decimals: 42
	lending: reserves: USDC: ltv_bps: 20000
}
`), 0o644))

	m, errs := Load(path)
	require.NotNil(t, m, "the compiled market comes back with its errors")
	require.Len(t, errs, 2)

	var got []string
	for _, err := range errs {
		verr, ok := err.(ValidationError)
		require.True(t, ok, "unexpected error type %T", err)
		got = append(got, verr.Code)
	}
	assert.Contains(t, got, ErrAssetDecimals)
	assert.Contains(t, got, ErrReserveLTV)
}

func TestLoadSyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syntax.cue")
	require.NoError(t, os.WriteFile(path, []byte("market: {\n"), 0o644))

	_, errs := Load(path)
	require.NotEmpty(t, errs)
}
