package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/omnibus/internal/codec"
	"github.com/roach88/omnibus/internal/engine"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/lending"
	"github.com/roach88/omnibus/internal/manifest"
	"github.com/roach88/omnibus/internal/permit"
	"github.com/roach88/omnibus/internal/store"
	"github.com/roach88/omnibus/internal/swap"
)

// Standard market accounts and their key seeds.
const (
	Alice     ledger.Account = "alice"
	Bob       ledger.Account = "bob"
	AliceSeed byte           = 1
	BobSeed   byte           = 2
)

// StandardPoolKey is the one swap pool the standard market opens.
var StandardPoolKey = codec.PoolKey{
	Asset0:      "USDC",
	Asset1:      "WETH",
	FeeBps:      30,
	TickSpacing: 60,
}

// Market is a fully wired component stack over one in-memory store,
// seeded with the standard test market: USDC and WETH, lending
// reserves at 80% and 70% loan-to-value, a USDC/WETH pool with a
// million units a side, alice holding ten million USDC and bob five
// million USDC plus two million WETH, both with registered keys.
type Market struct {
	Store    *store.Store
	Ledger   *ledger.Ledger
	Pool     *lending.Pool
	Router   *swap.Router
	Verifier *permit.Verifier
	Engine   *engine.Engine
	Clock    *Clock
	SwapPool swap.Pool
}

// NewMarket opens an in-memory store, wires every component over it,
// and seeds the standard market. The store closes with the test.
func NewMarket(t *testing.T) *Market {
	t.Helper()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := &Market{
		Store:  s,
		Ledger: ledger.New(),
		Clock:  NewClock(),
	}
	m.Pool = lending.NewPool(m.Ledger)
	m.Router = swap.NewRouter(m.Ledger)
	m.Verifier = permit.NewVerifier(m.Ledger, permit.WithClock(m.Clock.Now))
	m.Engine = engine.New(engine.Config{
		Store:    s,
		Ledger:   m.Ledger,
		Pool:     m.Pool,
		Router:   m.Router,
		Verifier: m.Verifier,
	})

	seed := &manifest.Market{
		Name: "standard",
		Assets: []manifest.Asset{
			{Symbol: "USDC", Decimals: 6},
			{Symbol: "WETH", Decimals: 18},
		},
		Accounts: []manifest.Account{
			{
				Name: string(Alice),
				Key:  PublicHex(AliceSeed),
				Balances: []manifest.Balance{
					{Asset: "USDC", Amount: 10_000_000},
				},
			},
			{
				Name: string(Bob),
				Key:  PublicHex(BobSeed),
				Balances: []manifest.Balance{
					{Asset: "USDC", Amount: 5_000_000},
					{Asset: "WETH", Amount: 2_000_000},
				},
			},
		},
		Reserves: []manifest.Reserve{
			{Asset: "USDC", LTVBps: 8_000},
			{Asset: "WETH", LTVBps: 7_000},
		},
		Pools: []manifest.PoolSpec{{
			Asset0:      StandardPoolKey.Asset0,
			Asset1:      StandardPoolKey.Asset1,
			FeeBps:      StandardPoolKey.FeeBps,
			TickSpacing: StandardPoolKey.TickSpacing,
			Reserve0:    1_000_000,
			Reserve1:    1_000_000,
		}},
	}
	require.Empty(t, manifest.Validate(seed))

	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx *sql.Tx) error {
		if err := manifest.Seed(ctx, tx, seed, manifest.Target{
			Ledger:   m.Ledger,
			Pool:     m.Pool,
			Router:   m.Router,
			Verifier: m.Verifier,
		}); err != nil {
			return err
		}
		m.SwapPool, err = m.Router.PoolFor(ctx, tx, StandardPoolKey)
		return err
	}))

	return m
}

// InTx runs fn in a committed transaction, failing the test on error.
func (m *Market) InTx(t *testing.T, fn func(ctx context.Context, tx *sql.Tx) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.Store.InTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, tx)
	}))
}

// Balance reads one custody balance.
func (m *Market) Balance(t *testing.T, account ledger.Account, asset ledger.Asset) uint64 {
	t.Helper()
	var bal uint64
	m.InTx(t, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		bal, err = m.Ledger.Balance(ctx, tx, account, asset)
		return err
	})
	return bal
}

// Position reads one lending position.
func (m *Market) Position(t *testing.T, account ledger.Account, asset ledger.Asset) lending.Position {
	t.Helper()
	var pos lending.Position
	m.InTx(t, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		pos, err = m.Pool.PositionFor(ctx, tx, account, asset)
		return err
	})
	return pos
}

// SignAuth signs a transfer authorization for the market's engine as
// spender, with the key derived from seed.
func (m *Market) SignAuth(t *testing.T, seed byte, auth permit.TransferAuthorization) string {
	t.Helper()
	sig, err := permit.Sign(Key(seed), m.Verifier.DomainSeparator(), m.Engine.Account(), auth)
	require.NoError(t, err)
	return sig
}
