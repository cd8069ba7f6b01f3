package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omnibus/internal/codec"
	"github.com/roach88/omnibus/internal/permit"
)

func TestKeyDeterministic(t *testing.T) {
	assert.Equal(t, Key(1), Key(1))
	assert.NotEqual(t, Key(1), Key(2))
	assert.Len(t, PublicHex(1), 64)
	assert.Equal(t, PublicHex(1), PublicHex(1))
}

func TestClockAdvances(t *testing.T) {
	c := NewClock()
	assert.Equal(t, GenesisUnix, c.Now().Unix())

	c.Advance(90 * time.Second)
	assert.Equal(t, GenesisUnix+90, c.Now().Unix())

	c.Set(GenesisUnix)
	assert.Equal(t, GenesisUnix, c.Now().Unix())
}

func TestNewMarketSeedsStandardState(t *testing.T) {
	m := NewMarket(t)

	assert.Equal(t, uint64(10_000_000), m.Balance(t, Alice, "USDC"))
	assert.Equal(t, uint64(5_000_000), m.Balance(t, Bob, "USDC"))
	assert.Equal(t, uint64(2_000_000), m.Balance(t, Bob, "WETH"))
	assert.Equal(t, uint64(1_000_000), m.Balance(t, m.SwapPool.Account, "USDC"))
	assert.Equal(t, uint64(1_000_000), m.Balance(t, m.SwapPool.Account, "WETH"))

	m.InTx(t, func(ctx context.Context, tx *sql.Tx) error {
		key, err := m.Verifier.KeyFor(ctx, tx, Alice)
		require.NoError(t, err)
		assert.Equal(t, PublicHex(AliceSeed), key)
		return nil
	})
}

func TestMarketRunsFundedInvocations(t *testing.T) {
	m := NewMarket(t)
	ctx := context.Background()

	auth := permit.TransferAuthorization{
		Owner:    Alice,
		Token:    "USDC",
		Amount:   1_000_000,
		Nonce:    1,
		Deadline: GenesisUnix + 3_600,
	}
	sig := m.SignAuth(t, AliceSeed, auth)

	require.NoError(t, m.Engine.ExecuteWithAuthorization(ctx,
		codec.Batch{codec.MustBuildDeposit("USDC", 1_000_000)}, auth, sig))

	assert.Equal(t, uint64(9_000_000), m.Balance(t, Alice, "USDC"))
	assert.Equal(t, uint64(1_000_000), m.Position(t, Alice, "USDC").Supplied)
}

func TestMarketClockGovernsDeadlines(t *testing.T) {
	m := NewMarket(t)
	ctx := context.Background()

	auth := permit.TransferAuthorization{
		Owner:    Alice,
		Token:    "USDC",
		Amount:   100,
		Nonce:    2,
		Deadline: GenesisUnix + 60,
	}
	sig := m.SignAuth(t, AliceSeed, auth)

	m.Clock.Advance(61 * time.Second)
	err := m.Engine.ExecuteWithAuthorization(ctx, nil, auth, sig)
	require.Error(t, err)
	reason, ok := permit.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, permit.ReasonExpired, reason)
}
