// Package ledger implements the fungible-asset book every other
// component settles against: custody balances, pull allowances, and
// transfers. All operations run inside a caller-supplied transaction,
// so a failed invocation unwinds every ledger write it made.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// Account names a custody balance holder. Users, the engine, the
// lending pool, and each swap pool all hold balances under accounts.
type Account string

// Asset names a registered fungible asset by symbol.
type Asset string

var (
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAmountRange           = errors.New("amount outside int64 range")
	ErrBalanceOverflow       = errors.New("balance overflow")
)

// Ledger runs balance and allowance operations against a transaction.
// It carries no state of its own; the database is the book.
type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// checkAmount rejects amounts that cannot live in an INTEGER column.
func checkAmount(amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrAmountRange, amount)
	}
	return nil
}

// RegisterAsset records an asset symbol with its display decimals.
// Idempotent: registering the same symbol again is a no-op.
func (l *Ledger) RegisterAsset(ctx context.Context, tx *sql.Tx, asset Asset, decimals int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assets (symbol, decimals)
		VALUES (?, ?)
		ON CONFLICT(symbol) DO NOTHING
	`, string(asset), decimals)
	if err != nil {
		return fmt.Errorf("register asset %q: %w", asset, err)
	}
	return nil
}

// AssetExists reports whether the symbol is registered.
func (l *Ledger) AssetExists(ctx context.Context, tx *sql.Tx, asset Asset) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM assets WHERE symbol = ?`, string(asset),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("asset exists %q: %w", asset, err)
	}
	return true, nil
}

// Balance returns the account's holding of asset. A missing row reads
// as zero.
func (l *Ledger) Balance(ctx context.Context, tx *sql.Tx, account Account, asset Asset) (uint64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account = ? AND asset = ?`,
		string(account), string(asset),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %q/%q: %w", account, asset, err)
	}
	return uint64(amount), nil
}

// Mint credits freshly issued units to an account. The asset must be
// registered. Used by market seeding and tests; nothing in the
// execution path mints.
func (l *Ledger) Mint(ctx context.Context, tx *sql.Tx, account Account, asset Asset, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("mint %q to %q: %w", asset, account, err)
	}

	exists, err := l.AssetExists(ctx, tx, asset)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("mint %q to %q: %w", asset, account, ErrUnknownAsset)
	}

	if err := l.credit(ctx, tx, account, asset, amount); err != nil {
		return fmt.Errorf("mint %q to %q: %w", asset, account, err)
	}
	return nil
}

// Transfer moves amount of asset between accounts. Fails with
// ErrInsufficientFunds if the source holds less than amount. A zero
// amount or a self-transfer touches nothing.
func (l *Ledger) Transfer(ctx context.Context, tx *sql.Tx, from, to Account, asset Asset, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("transfer %q from %q to %q: %w", asset, from, to, err)
	}

	have, err := l.Balance(ctx, tx, from, asset)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("transfer %d %s from %q to %q (have %d): %w",
			amount, asset, from, to, have, ErrInsufficientFunds)
	}

	if amount == 0 || from == to {
		return nil
	}

	if err := l.debit(ctx, tx, from, asset, have, amount); err != nil {
		return fmt.Errorf("transfer %q from %q to %q: %w", asset, from, to, err)
	}
	if err := l.credit(ctx, tx, to, asset, amount); err != nil {
		return fmt.Errorf("transfer %q from %q to %q: %w", asset, from, to, err)
	}
	return nil
}

// credit adds amount to the account's balance, creating the row on
// first touch. Overflow of the int64 column is rejected before the
// write.
func (l *Ledger) credit(ctx context.Context, tx *sql.Tx, account Account, asset Asset, amount uint64) error {
	cur, err := l.Balance(ctx, tx, account, asset)
	if err != nil {
		return err
	}
	if cur > math.MaxInt64-amount {
		return fmt.Errorf("credit %d to %q (have %d): %w", amount, account, cur, ErrBalanceOverflow)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO balances (account, asset, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(account, asset) DO UPDATE SET amount = excluded.amount
	`, string(account), string(asset), int64(cur+amount))
	if err != nil {
		return fmt.Errorf("credit %q/%q: %w", account, asset, err)
	}
	return nil
}

// debit subtracts amount from the account's balance. The caller has
// already read have and verified have >= amount.
func (l *Ledger) debit(ctx context.Context, tx *sql.Tx, account Account, asset Asset, have, amount uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE balances SET amount = ? WHERE account = ? AND asset = ?`,
		int64(have-amount), string(account), string(asset),
	)
	if err != nil {
		return fmt.Errorf("debit %q/%q: %w", account, asset, err)
	}
	return nil
}

// Holding is one (asset, amount) pair of an account's book.
type Holding struct {
	Asset  Asset
	Amount uint64
}

// Entry is one (account, asset, amount) row of the full book.
type Entry struct {
	Account Account
	Asset   Asset
	Amount  uint64
}

// Balances lists every non-zero holding in (account, asset) order.
// The harness snapshots whole-market end states through this.
func (l *Ledger) Balances(ctx context.Context, tx *sql.Tx) ([]Entry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT account, asset, amount FROM balances
		WHERE amount > 0
		ORDER BY account ASC, asset ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var account, asset string
		var amount int64
		if err := rows.Scan(&account, &asset, &amount); err != nil {
			return nil, fmt.Errorf("balances: %w", err)
		}
		entries = append(entries, Entry{
			Account: Account(account),
			Asset:   Asset(asset),
			Amount:  uint64(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	return entries, nil
}

// AccountBalances lists an account's non-zero holdings in asset order.
// Deterministic ordering keeps CLI output and golden files stable.
func (l *Ledger) AccountBalances(ctx context.Context, tx *sql.Tx, account Account) ([]Holding, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT asset, amount FROM balances
		WHERE account = ? AND amount > 0
		ORDER BY asset ASC
	`, string(account))
	if err != nil {
		return nil, fmt.Errorf("balances for %q: %w", account, err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var asset string
		var amount int64
		if err := rows.Scan(&asset, &amount); err != nil {
			return nil, fmt.Errorf("balances for %q: %w", account, err)
		}
		holdings = append(holdings, Holding{Asset: Asset(asset), Amount: uint64(amount)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("balances for %q: %w", account, err)
	}
	return holdings, nil
}
