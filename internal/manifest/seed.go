package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/lending"
	"github.com/roach88/omnibus/internal/permit"
	"github.com/roach88/omnibus/internal/swap"
)

// Target collects the components Seed writes through. All of them run
// against the transaction Seed is handed.
type Target struct {
	Ledger   *ledger.Ledger
	Pool     *lending.Pool
	Router   *swap.Router
	Verifier *permit.Verifier
}

// Seed applies a compiled market inside one transaction: assets first,
// then lending reserves, swap pools with their initial custody
// reserves, and finally account balances and signing keys. Declaration
// steps are idempotent, but balances and pool reserves mint fresh
// units each call, so a database is seeded once.
//
// Seed trusts its input; run Validate (or Load, which does) first.
func Seed(ctx context.Context, tx *sql.Tx, m *Market, tgt Target) error {
	for _, a := range m.Assets {
		if err := tgt.Ledger.RegisterAsset(ctx, tx, ledger.Asset(a.Symbol), int(a.Decimals)); err != nil {
			return fmt.Errorf("seed asset %q: %w", a.Symbol, err)
		}
	}

	for _, r := range m.Reserves {
		if err := tgt.Pool.CreateReserve(ctx, tx, ledger.Asset(r.Asset), r.LTVBps); err != nil {
			return fmt.Errorf("seed reserve %q: %w", r.Asset, err)
		}
	}

	for i, p := range m.Pools {
		pool, err := tgt.Router.CreatePool(ctx, tx, p.Key())
		if err != nil {
			return fmt.Errorf("seed pool %s/%s: %w", p.Asset0, p.Asset1, err)
		}
		if p.Reserve0 > 0 {
			if err := tgt.Ledger.Mint(ctx, tx, pool.Account, ledger.Asset(p.Asset0), p.Reserve0); err != nil {
				return fmt.Errorf("seed pool %s/%s reserves: %w", p.Asset0, p.Asset1, err)
			}
		}
		if p.Reserve1 > 0 {
			if err := tgt.Ledger.Mint(ctx, tx, pool.Account, ledger.Asset(p.Asset1), p.Reserve1); err != nil {
				return fmt.Errorf("seed pool %s/%s reserves: %w", p.Asset0, p.Asset1, err)
			}
		}
		slog.Debug("seeded pool",
			"index", i,
			"pool_id", pool.ID,
			"account", pool.Account)
	}

	for _, acct := range m.Accounts {
		for _, b := range acct.Balances {
			if err := tgt.Ledger.Mint(ctx, tx, ledger.Account(acct.Name), ledger.Asset(b.Asset), b.Amount); err != nil {
				return fmt.Errorf("seed account %q balance: %w", acct.Name, err)
			}
		}
		if acct.Key != "" {
			if err := tgt.Verifier.RegisterKey(ctx, tx, ledger.Account(acct.Name), acct.Key); err != nil {
				return fmt.Errorf("seed account %q key: %w", acct.Name, err)
			}
		}
	}

	slog.Info("market seeded",
		"name", m.Name,
		"assets", len(m.Assets),
		"accounts", len(m.Accounts),
		"reserves", len(m.Reserves),
		"pools", len(m.Pools))
	return nil
}
