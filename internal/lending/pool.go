// Package lending implements the reference lending pool: reserves
// declare which assets can be supplied and borrowed, positions track
// each account's supply and debt, and the pool's custody account holds
// the deposited liquidity. Collateral is valued at par (one base unit
// of any reserve asset counts as one unit of borrowing power before
// the loan-to-value haircut); there is no price oracle.
package lending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/roach88/omnibus/internal/codec"
	"github.com/roach88/omnibus/internal/ledger"
)

// CustodyAccount holds all supplied liquidity.
const CustodyAccount ledger.Account = "pool:lending"

var (
	ErrReserveNotFound        = errors.New("reserve not found")
	ErrInvalidRateMode        = errors.New("invalid rate mode")
	ErrInsufficientLiquidity  = errors.New("insufficient pool liquidity")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrPositionOverflow       = errors.New("position overflow")
)

// Reserve is the pool-side configuration of one asset.
type Reserve struct {
	Asset  ledger.Asset
	LTVBps uint32
}

// Position is one account's book against one reserve.
type Position struct {
	Account      ledger.Account
	Asset        ledger.Asset
	Supplied     uint64
	StableDebt   uint64
	VariableDebt uint64
}

// Pool runs deposits and borrows against the store.
type Pool struct {
	ledger  *ledger.Ledger
	account ledger.Account
}

func NewPool(l *ledger.Ledger) *Pool {
	return &Pool{
		ledger:  l,
		account: CustodyAccount,
	}
}

// Account returns the pool's custody account.
func (p *Pool) Account() ledger.Account {
	return p.account
}

// CreateReserve registers an asset as depositable and borrowable with
// the given collateral loan-to-value. Idempotent; the asset must
// already exist in the ledger.
func (p *Pool) CreateReserve(ctx context.Context, tx *sql.Tx, asset ledger.Asset, ltvBps uint32) error {
	if ltvBps > 10_000 {
		return fmt.Errorf("create reserve %q: ltv %d exceeds 10000 bps", asset, ltvBps)
	}

	exists, err := p.ledger.AssetExists(ctx, tx, asset)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("create reserve %q: %w", asset, ledger.ErrUnknownAsset)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lending_reserves (asset, ltv_bps)
		VALUES (?, ?)
		ON CONFLICT(asset) DO NOTHING
	`, string(asset), int64(ltvBps))
	if err != nil {
		return fmt.Errorf("create reserve %q: %w", asset, err)
	}
	return nil
}

// ReserveFor returns the reserve configuration of an asset, or
// ErrReserveNotFound.
func (p *Pool) ReserveFor(ctx context.Context, tx *sql.Tx, asset ledger.Asset) (Reserve, error) {
	var ltv int64
	err := tx.QueryRowContext(ctx,
		`SELECT ltv_bps FROM lending_reserves WHERE asset = ?`, string(asset),
	).Scan(&ltv)
	if errors.Is(err, sql.ErrNoRows) {
		return Reserve{}, fmt.Errorf("reserve %q: %w", asset, ErrReserveNotFound)
	}
	if err != nil {
		return Reserve{}, fmt.Errorf("reserve %q: %w", asset, err)
	}
	return Reserve{Asset: asset, LTVBps: uint32(ltv)}, nil
}

// PositionFor returns the account's position against one reserve.
// A missing row reads as an all-zero position.
func (p *Pool) PositionFor(ctx context.Context, tx *sql.Tx, account ledger.Account, asset ledger.Asset) (Position, error) {
	pos := Position{Account: account, Asset: asset}
	var supplied, stable, variable int64
	err := tx.QueryRowContext(ctx, `
		SELECT supplied, stable_debt, variable_debt
		FROM lending_positions
		WHERE account = ? AND asset = ?
	`, string(account), string(asset)).Scan(&supplied, &stable, &variable)
	if errors.Is(err, sql.ErrNoRows) {
		return pos, nil
	}
	if err != nil {
		return Position{}, fmt.Errorf("position %q/%q: %w", account, asset, err)
	}
	pos.Supplied = uint64(supplied)
	pos.StableDebt = uint64(stable)
	pos.VariableDebt = uint64(variable)
	return pos, nil
}

// Positions lists every non-empty position in (account, asset) order.
// The harness snapshots the whole lending book through this.
func (p *Pool) Positions(ctx context.Context, tx *sql.Tx) ([]Position, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT account, asset, supplied, stable_debt, variable_debt
		FROM lending_positions
		WHERE supplied > 0 OR stable_debt > 0 OR variable_debt > 0
		ORDER BY account ASC, asset ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var account, asset string
		var supplied, stable, variable int64
		if err := rows.Scan(&account, &asset, &supplied, &stable, &variable); err != nil {
			return nil, fmt.Errorf("positions: %w", err)
		}
		positions = append(positions, Position{
			Account:      ledger.Account(account),
			Asset:        ledger.Asset(asset),
			Supplied:     uint64(supplied),
			StableDebt:   uint64(stable),
			VariableDebt: uint64(variable),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return positions, nil
}

// Deposit pulls amount of asset from the payer via allowance into pool
// custody and credits the supply position of onBehalfOf. The payer must
// have granted the pool's custody account an allowance covering amount.
// The referral tag is accepted for integration attribution and has no
// effect on accounting.
func (p *Pool) Deposit(ctx context.Context, tx *sql.Tx, asset ledger.Asset, amount uint64, from, onBehalfOf ledger.Account, referral uint16) error {
	if _, err := p.ReserveFor(ctx, tx, asset); err != nil {
		return err
	}

	if err := p.ledger.TransferFrom(ctx, tx, p.account, from, p.account, asset, amount); err != nil {
		return fmt.Errorf("deposit %d %s: %w", amount, asset, err)
	}

	pos, err := p.PositionFor(ctx, tx, onBehalfOf, asset)
	if err != nil {
		return err
	}
	if pos.Supplied > math.MaxInt64-amount {
		return fmt.Errorf("deposit %d %s for %q: %w", amount, asset, onBehalfOf, ErrPositionOverflow)
	}
	pos.Supplied += amount

	if err := p.writePosition(ctx, tx, pos); err != nil {
		return fmt.Errorf("deposit %d %s for %q: %w", amount, asset, onBehalfOf, err)
	}
	return nil
}

// Borrow lends amount of asset to onBehalfOf: the account is recorded
// as debtor under the chosen rate mode and receives the funds directly
// from pool custody. The borrow must be covered by the account's
// collateral capacity and by pool liquidity.
func (p *Pool) Borrow(ctx context.Context, tx *sql.Tx, asset ledger.Asset, amount uint64, mode codec.RateMode, referral uint16, onBehalfOf ledger.Account) error {
	if _, err := p.ReserveFor(ctx, tx, asset); err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("borrow %d %s: mode %d: %w", amount, asset, mode, ErrInvalidRateMode)
	}

	liquidity, err := p.ledger.Balance(ctx, tx, p.account, asset)
	if err != nil {
		return err
	}
	if liquidity < amount {
		return fmt.Errorf("borrow %d %s (pool holds %d): %w", amount, asset, liquidity, ErrInsufficientLiquidity)
	}

	capacity, debt, err := p.accountLimits(ctx, tx, onBehalfOf)
	if err != nil {
		return err
	}
	// capacity >= debt + amount, computed wide to survive many maxed
	// positions summed together.
	need := new(big.Int).Add(debt, new(big.Int).SetUint64(amount))
	if capacity.Cmp(need) < 0 {
		return fmt.Errorf("borrow %d %s for %q (capacity %s, debt %s): %w",
			amount, asset, onBehalfOf, capacity, debt, ErrInsufficientCollateral)
	}

	pos, err := p.PositionFor(ctx, tx, onBehalfOf, asset)
	if err != nil {
		return err
	}
	switch mode {
	case codec.RateModeStable:
		if pos.StableDebt > math.MaxInt64-amount {
			return fmt.Errorf("borrow %d %s for %q: %w", amount, asset, onBehalfOf, ErrPositionOverflow)
		}
		pos.StableDebt += amount
	case codec.RateModeVariable:
		if pos.VariableDebt > math.MaxInt64-amount {
			return fmt.Errorf("borrow %d %s for %q: %w", amount, asset, onBehalfOf, ErrPositionOverflow)
		}
		pos.VariableDebt += amount
	}
	if err := p.writePosition(ctx, tx, pos); err != nil {
		return fmt.Errorf("borrow %d %s for %q: %w", amount, asset, onBehalfOf, err)
	}

	if err := p.ledger.Transfer(ctx, tx, p.account, onBehalfOf, asset, amount); err != nil {
		return fmt.Errorf("borrow %d %s for %q: %w", amount, asset, onBehalfOf, err)
	}
	return nil
}

// accountLimits computes the account's total borrowing capacity and
// outstanding debt across all reserves, at par value. Products of
// supplied amounts and basis points overflow int64, so both sums are
// carried as big.Int.
func (p *Pool) accountLimits(ctx context.Context, tx *sql.Tx, account ledger.Account) (capacity, debt *big.Int, err error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pos.supplied, pos.stable_debt, pos.variable_debt, res.ltv_bps
		FROM lending_positions pos
		JOIN lending_reserves res ON res.asset = pos.asset
		WHERE pos.account = ?
		ORDER BY pos.asset ASC
	`, string(account))
	if err != nil {
		return nil, nil, fmt.Errorf("account limits %q: %w", account, err)
	}
	defer rows.Close()

	capacity = new(big.Int)
	debt = new(big.Int)
	bpsDenom := big.NewInt(10_000)

	for rows.Next() {
		var supplied, stable, variable, ltv int64
		if err := rows.Scan(&supplied, &stable, &variable, &ltv); err != nil {
			return nil, nil, fmt.Errorf("account limits %q: %w", account, err)
		}

		contribution := new(big.Int).Mul(big.NewInt(supplied), big.NewInt(ltv))
		contribution.Quo(contribution, bpsDenom)
		capacity.Add(capacity, contribution)

		debt.Add(debt, big.NewInt(stable))
		debt.Add(debt, big.NewInt(variable))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("account limits %q: %w", account, err)
	}
	return capacity, debt, nil
}

func (p *Pool) writePosition(ctx context.Context, tx *sql.Tx, pos Position) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO lending_positions (account, asset, supplied, stable_debt, variable_debt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account, asset) DO UPDATE SET
			supplied = excluded.supplied,
			stable_debt = excluded.stable_debt,
			variable_debt = excluded.variable_debt
	`, string(pos.Account), string(pos.Asset),
		int64(pos.Supplied), int64(pos.StableDebt), int64(pos.VariableDebt))
	if err != nil {
		return fmt.Errorf("write position %q/%q: %w", pos.Account, pos.Asset, err)
	}
	return nil
}
