// Package swap implements the reference router: pools are identified
// by the domain hash of their canonical key, hold their reserves as
// ledger balances under a per-pool custody account, and quote swaps
// with constant-product math, fee taken on the input side.
package swap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/roach88/omnibus/internal/codec"
	"github.com/roach88/omnibus/internal/ledger"
)

// accountPrefix scopes pool custody accounts in the ledger namespace.
const accountPrefix = "pool:"

var (
	ErrPoolNotFound  = errors.New("pool not found")
	ErrZeroInput     = errors.New("zero swap input")
	ErrEmptyReserves = errors.New("empty pool reserves")
	ErrPriceLimit    = errors.New("price limit exceeded")
)

// Pool is one registered pool: its identity and its custody account.
type Pool struct {
	ID      string
	Key     codec.PoolKey
	Account ledger.Account
}

// Request describes one swap against a pool. PriceLimitBps, when
// nonzero, bounds the post-swap reserve ratio: the swap fails if
// reserveIn*10000 would exceed limit*reserveOut afterwards.
type Request struct {
	ZeroForOne    bool
	AmountIn      uint64
	PriceLimitBps uint64
}

// Settlement names who pays the input and who receives the output.
type Settlement struct {
	Payer     ledger.Account
	Recipient ledger.Account
}

// Result reports the executed amounts. Fee is denominated in the input
// asset and stays in the pool.
type Result struct {
	AmountIn  uint64
	AmountOut uint64
	Fee       uint64
}

// Router executes swaps against the store.
type Router struct {
	ledger *ledger.Ledger
}

func NewRouter(l *ledger.Ledger) *Router {
	return &Router{ledger: l}
}

// CreatePool registers the pool for key. Idempotent: the pool id is a
// content hash of the key, so re-creating the same key is a no-op. Both
// assets must already exist in the ledger.
func (r *Router) CreatePool(ctx context.Context, tx *sql.Tx, key codec.PoolKey) (Pool, error) {
	if key.Asset0 == key.Asset1 {
		return Pool{}, fmt.Errorf("create pool: assets must differ, both %q", key.Asset0)
	}
	if key.FeeBps >= 10_000 {
		return Pool{}, fmt.Errorf("create pool: fee %d bps out of range", key.FeeBps)
	}
	if key.TickSpacing < 1 {
		return Pool{}, fmt.Errorf("create pool: tick spacing %d out of range", key.TickSpacing)
	}
	for _, asset := range []string{key.Asset0, key.Asset1} {
		exists, err := r.ledger.AssetExists(ctx, tx, ledger.Asset(asset))
		if err != nil {
			return Pool{}, err
		}
		if !exists {
			return Pool{}, fmt.Errorf("create pool: asset %q: %w", asset, ledger.ErrUnknownAsset)
		}
	}

	// The custody account carries the key's human form rather than the
	// hash: balance listings stay readable, and uniqueness follows from
	// the same fields the id hashes.
	id := key.ID()
	account := ledger.Account(accountPrefix + key.String())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO swap_pools (pool_id, asset0, asset1, fee_bps, tick_spacing, hook, account)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool_id) DO NOTHING
	`, id, key.Asset0, key.Asset1, int64(key.FeeBps), int64(key.TickSpacing), key.Hook, string(account))
	if err != nil {
		return Pool{}, fmt.Errorf("create pool %s: %w", id, err)
	}
	return Pool{ID: id, Key: key, Account: account}, nil
}

// PoolFor resolves the registered pool for key, or ErrPoolNotFound.
func (r *Router) PoolFor(ctx context.Context, tx *sql.Tx, key codec.PoolKey) (Pool, error) {
	id := key.ID()
	pool := Pool{ID: id}
	var account string
	var feeBps, tickSpacing int64
	err := tx.QueryRowContext(ctx, `
		SELECT asset0, asset1, fee_bps, tick_spacing, hook, account
		FROM swap_pools
		WHERE pool_id = ?
	`, id).Scan(&pool.Key.Asset0, &pool.Key.Asset1, &feeBps, &tickSpacing, &pool.Key.Hook, &account)
	if errors.Is(err, sql.ErrNoRows) {
		return Pool{}, fmt.Errorf("pool %s: %w", id, ErrPoolNotFound)
	}
	if err != nil {
		return Pool{}, fmt.Errorf("pool %s: %w", id, err)
	}
	pool.Key.FeeBps = uint32(feeBps)
	pool.Key.TickSpacing = int32(tickSpacing)
	pool.Account = ledger.Account(account)
	return pool, nil
}

// Pools lists every registered pool in pool id order.
func (r *Router) Pools(ctx context.Context, tx *sql.Tx) ([]Pool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pool_id, asset0, asset1, fee_bps, tick_spacing, hook, account
		FROM swap_pools
		ORDER BY pool_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var pools []Pool
	for rows.Next() {
		var pool Pool
		var account string
		var feeBps, tickSpacing int64
		if err := rows.Scan(&pool.ID, &pool.Key.Asset0, &pool.Key.Asset1, &feeBps, &tickSpacing, &pool.Key.Hook, &account); err != nil {
			return nil, fmt.Errorf("list pools: %w", err)
		}
		pool.Key.FeeBps = uint32(feeBps)
		pool.Key.TickSpacing = int32(tickSpacing)
		pool.Account = ledger.Account(account)
		pools = append(pools, pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

// Reserves reads the pool's current reserves, which are simply the
// custody account's balances in the two pool assets.
func (r *Router) Reserves(ctx context.Context, tx *sql.Tx, pool Pool) (reserve0, reserve1 uint64, err error) {
	reserve0, err = r.ledger.Balance(ctx, tx, pool.Account, ledger.Asset(pool.Key.Asset0))
	if err != nil {
		return 0, 0, err
	}
	reserve1, err = r.ledger.Balance(ctx, tx, pool.Account, ledger.Asset(pool.Key.Asset1))
	if err != nil {
		return 0, 0, err
	}
	return reserve0, reserve1, nil
}

// Swap executes one swap: the payer's input is pulled into pool custody
// via allowance, the constant-product output is paid from custody to
// the recipient, and the fee share of the input stays in the pool. The
// hookData bytes are reserved for pools whose key names a hook; the
// reference router attaches no hook behavior and ignores them.
func (r *Router) Swap(ctx context.Context, tx *sql.Tx, key codec.PoolKey, req Request, settle Settlement, hookData []byte) (Result, error) {
	pool, err := r.PoolFor(ctx, tx, key)
	if err != nil {
		return Result{}, err
	}
	if req.AmountIn == 0 {
		return Result{}, fmt.Errorf("swap in pool %s: %w", pool.ID, ErrZeroInput)
	}

	assetIn := ledger.Asset(pool.Key.Asset0)
	assetOut := ledger.Asset(pool.Key.Asset1)
	if !req.ZeroForOne {
		assetIn, assetOut = assetOut, assetIn
	}

	reserveIn, err := r.ledger.Balance(ctx, tx, pool.Account, assetIn)
	if err != nil {
		return Result{}, err
	}
	reserveOut, err := r.ledger.Balance(ctx, tx, pool.Account, assetOut)
	if err != nil {
		return Result{}, err
	}
	if reserveIn == 0 || reserveOut == 0 {
		return Result{}, fmt.Errorf("swap in pool %s: %w", pool.ID, ErrEmptyReserves)
	}

	fee, amountOut := quote(reserveIn, reserveOut, req.AmountIn, pool.Key.FeeBps)

	if req.PriceLimitBps > 0 {
		if exceedsPriceLimit(reserveIn, reserveOut, req.AmountIn, amountOut, req.PriceLimitBps) {
			return Result{}, fmt.Errorf("swap in pool %s: %w", pool.ID, ErrPriceLimit)
		}
	}

	if err := r.ledger.TransferFrom(ctx, tx, pool.Account, settle.Payer, pool.Account, assetIn, req.AmountIn); err != nil {
		return Result{}, fmt.Errorf("swap in pool %s: %w", pool.ID, err)
	}
	if err := r.ledger.Transfer(ctx, tx, pool.Account, settle.Recipient, assetOut, amountOut); err != nil {
		return Result{}, fmt.Errorf("swap in pool %s: %w", pool.ID, err)
	}

	return Result{AmountIn: req.AmountIn, AmountOut: amountOut, Fee: fee}, nil
}

// quote prices amountIn against the reserves: the fee share of the
// input is kept aside, the remainder trades at x*y=k. Products exceed
// int64 for full-width reserves, so the math runs in big.Int. The
// floored division guarantees amountOut < reserveOut, so a pool can
// never be fully drained.
func quote(reserveIn, reserveOut, amountIn uint64, feeBps uint32) (fee, amountOut uint64) {
	bpsDenom := big.NewInt(10_000)

	in := new(big.Int).SetUint64(amountIn)
	feeBig := new(big.Int).Mul(in, big.NewInt(int64(feeBps)))
	feeBig.Quo(feeBig, bpsDenom)
	effective := new(big.Int).Sub(in, feeBig)

	num := new(big.Int).Mul(new(big.Int).SetUint64(reserveOut), effective)
	den := new(big.Int).Add(new(big.Int).SetUint64(reserveIn), effective)
	out := num.Quo(num, den)

	return feeBig.Uint64(), out.Uint64()
}

// exceedsPriceLimit reports whether the post-swap reserve ratio
// reserveIn'/reserveOut' would exceed limit/10000.
func exceedsPriceLimit(reserveIn, reserveOut, amountIn, amountOut, limitBps uint64) bool {
	newIn := new(big.Int).Add(new(big.Int).SetUint64(reserveIn), new(big.Int).SetUint64(amountIn))
	newOut := new(big.Int).Sub(new(big.Int).SetUint64(reserveOut), new(big.Int).SetUint64(amountOut))

	lhs := newIn.Mul(newIn, big.NewInt(10_000))
	rhs := newOut.Mul(newOut, new(big.Int).SetUint64(limitBps))
	return lhs.Cmp(rhs) > 0
}
