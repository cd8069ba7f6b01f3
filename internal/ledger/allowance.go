package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetAllowance grants spender the right to pull up to amount of asset
// from owner. The grant is absolute, never additive: setting the same
// amount twice leaves exactly that amount, and setting zero revokes.
func (l *Ledger) SetAllowance(ctx context.Context, tx *sql.Tx, owner, spender Account, asset Asset, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("set allowance %q -> %q for %q: %w", owner, spender, asset, err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO allowances (owner, spender, asset, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, spender, asset) DO UPDATE SET amount = excluded.amount
	`, string(owner), string(spender), string(asset), int64(amount))
	if err != nil {
		return fmt.Errorf("set allowance %q -> %q for %q: %w", owner, spender, asset, err)
	}
	return nil
}

// Allowance returns what spender may still pull from owner. A missing
// row reads as zero.
func (l *Ledger) Allowance(ctx context.Context, tx *sql.Tx, owner, spender Account, asset Asset) (uint64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx,
		`SELECT amount FROM allowances WHERE owner = ? AND spender = ? AND asset = ?`,
		string(owner), string(spender), string(asset),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("allowance %q -> %q for %q: %w", owner, spender, asset, err)
	}
	return uint64(amount), nil
}

// TransferFrom moves amount of asset from owner to recipient on the
// strength of spender's allowance. The allowance is decremented before
// the transfer; both writes unwind together if the transaction aborts.
func (l *Ledger) TransferFrom(ctx context.Context, tx *sql.Tx, spender, owner, to Account, asset Asset, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("transfer-from %q by %q: %w", owner, spender, err)
	}

	granted, err := l.Allowance(ctx, tx, owner, spender, asset)
	if err != nil {
		return err
	}
	if granted < amount {
		return fmt.Errorf("transfer-from %d %s of %q by %q (granted %d): %w",
			amount, asset, owner, spender, granted, ErrInsufficientAllowance)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE allowances SET amount = ? WHERE owner = ? AND spender = ? AND asset = ?`,
		int64(granted-amount), string(owner), string(spender), string(asset),
	)
	if err != nil {
		return fmt.Errorf("transfer-from %q by %q: %w", owner, spender, err)
	}

	return l.Transfer(ctx, tx, owner, to, asset, amount)
}
