package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMarket() *Market {
	return &Market{
		Name: "test",
		Assets: []Asset{
			{Symbol: "USDC", Decimals: 6},
			{Symbol: "WETH", Decimals: 18},
		},
		Accounts: []Account{{
			Name:     "alice",
			Key:      strings.Repeat("ab", 32),
			Balances: []Balance{{Asset: "USDC", Amount: 1_000}},
		}},
		Reserves: []Reserve{{Asset: "USDC", LTVBps: 8_000}},
		Pools: []PoolSpec{{
			Asset0: "USDC", Asset1: "WETH",
			FeeBps: 30, TickSpacing: 60,
			Reserve0: 1_000, Reserve1: 1_000,
		}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateCleanMarket(t *testing.T) {
	assert.Empty(t, Validate(validMarket()))
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Market)
		code   string
		field  string
	}{
		{
			name:   "no assets",
			mutate: func(m *Market) { m.Assets = nil },
			code:   ErrMarketNoAssets,
			field:  "assets",
		},
		{
			name:   "decimals above 18",
			mutate: func(m *Market) { m.Assets[0].Decimals = 19 },
			code:   ErrAssetDecimals,
			field:  "assets.USDC.decimals",
		},
		{
			name:   "duplicate asset",
			mutate: func(m *Market) { m.Assets = append(m.Assets, Asset{Symbol: "USDC", Decimals: 6}) },
			code:   ErrDuplicateName,
			field:  "assets[2]",
		},
		{
			name:   "balance of undeclared asset",
			mutate: func(m *Market) { m.Accounts[0].Balances[0].Asset = "DOGE" },
			code:   ErrUnknownAsset,
			field:  "accounts.alice.balances.DOGE",
		},
		{
			name:   "reserve for undeclared asset",
			mutate: func(m *Market) { m.Reserves[0].Asset = "DOGE" },
			code:   ErrUnknownAsset,
			field:  "lending.reserves.DOGE",
		},
		{
			name:   "ltv above par",
			mutate: func(m *Market) { m.Reserves[0].LTVBps = 10_001 },
			code:   ErrReserveLTV,
			field:  "lending.reserves.USDC.ltv_bps",
		},
		{
			name:   "pool assets equal",
			mutate: func(m *Market) { m.Pools[0].Asset1 = "USDC" },
			code:   ErrPoolAssets,
			field:  "swap.pools[0]",
		},
		{
			name:   "pool asset undeclared",
			mutate: func(m *Market) { m.Pools[0].Asset1 = "DOGE" },
			code:   ErrUnknownAsset,
			field:  "swap.pools[0]",
		},
		{
			name:   "pool fee at par",
			mutate: func(m *Market) { m.Pools[0].FeeBps = 10_000 },
			code:   ErrPoolFee,
			field:  "swap.pools[0].fee_bps",
		},
		{
			name:   "pool tick zero",
			mutate: func(m *Market) { m.Pools[0].TickSpacing = 0 },
			code:   ErrPoolTick,
			field:  "swap.pools[0].tick_spacing",
		},
		{
			name:   "duplicate pool",
			mutate: func(m *Market) { m.Pools = append(m.Pools, m.Pools[0]) },
			code:   ErrDuplicatePool,
			field:  "swap.pools[1]",
		},
		{
			name:   "key too short",
			mutate: func(m *Market) { m.Accounts[0].Key = "abcd" },
			code:   ErrAccountKey,
			field:  "accounts.alice.key",
		},
		{
			name:   "key not hex",
			mutate: func(m *Market) { m.Accounts[0].Key = strings.Repeat("zz", 32) },
			code:   ErrAccountKey,
			field:  "accounts.alice.key",
		},
		{
			name:   "engine account reserved",
			mutate: func(m *Market) { m.Accounts[0].Name = "engine" },
			code:   ErrReservedAccount,
			field:  "accounts.engine",
		},
		{
			name:   "custody prefix reserved",
			mutate: func(m *Market) { m.Accounts[0].Name = "pool:lending" },
			code:   ErrReservedAccount,
			field:  "accounts.pool:lending",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := validMarket()
			tc.mutate(m)

			errs := Validate(m)
			require.NotEmpty(t, errs)

			found := false
			for _, e := range errs {
				if e.Code == tc.code && e.Field == tc.field {
					found = true
					break
				}
			}
			assert.True(t, found, "want [%s] %s in %v", tc.code, tc.field, errs)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	m := validMarket()
	m.Assets[0].Decimals = 42
	m.Reserves[0].LTVBps = 20_000
	m.Pools[0].FeeBps = 10_000
	m.Accounts[0].Key = "short"

	got := codes(Validate(m))
	assert.Contains(t, got, ErrAssetDecimals)
	assert.Contains(t, got, ErrReserveLTV)
	assert.Contains(t, got, ErrPoolFee)
	assert.Contains(t, got, ErrAccountKey)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "assets", Message: "at least one asset is required", Code: ErrMarketNoAssets}
	assert.Equal(t, "[E201] assets: at least one asset is required", err.Error())
}

func TestKeyRoundTrip(t *testing.T) {
	// A real ed25519 public key passes the key check.
	m := validMarket()
	m.Accounts[0].Key = strings.Repeat("00", 32)
	assert.Empty(t, Validate(m))
}
