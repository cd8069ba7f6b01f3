package engine

import (
	"context"
	"database/sql"

	"github.com/roach88/omnibus/internal/codec"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/permit"
	"github.com/roach88/omnibus/internal/swap"
)

// The engine calls its collaborators through these interfaces and
// expects the reference implementations' guarantees back: every
// operation joins the invocation's transaction, returns an error
// instead of partially applying, and moves funds only through the
// ledger. Tests substitute instrumented doubles.

// AssetLedger is the fungible-asset surface the engine itself uses:
// reading its own balances, granting exact allowances to protocol
// custody accounts, and paying callers out.
type AssetLedger interface {
	Balance(ctx context.Context, tx *sql.Tx, account ledger.Account, asset ledger.Asset) (uint64, error)
	SetAllowance(ctx context.Context, tx *sql.Tx, owner, spender ledger.Account, asset ledger.Asset, amount uint64) error
	Transfer(ctx context.Context, tx *sql.Tx, from, to ledger.Account, asset ledger.Asset, amount uint64) error
}

// LendingPool is the lending protocol contract. Deposit pulls the
// funds from the payer via a previously granted allowance to the
// pool's custody account; Borrow pays the borrowed funds directly to
// onBehalfOf, never through the engine.
type LendingPool interface {
	Account() ledger.Account
	Deposit(ctx context.Context, tx *sql.Tx, asset ledger.Asset, amount uint64, from, onBehalfOf ledger.Account, referral uint16) error
	Borrow(ctx context.Context, tx *sql.Tx, asset ledger.Asset, amount uint64, mode codec.RateMode, referral uint16, onBehalfOf ledger.Account) error
}

// SwapRouter is the swap protocol contract. PoolFor resolves a pool's
// custody account so the engine can grant the input allowance to
// exactly the account that will spend it.
type SwapRouter interface {
	PoolFor(ctx context.Context, tx *sql.Tx, key codec.PoolKey) (swap.Pool, error)
	Swap(ctx context.Context, tx *sql.Tx, key codec.PoolKey, req swap.Request, settle swap.Settlement, hookData []byte) (swap.Result, error)
}

// AuthorizationVerifier is the signed-transfer gateway. PullWithSignature
// validates the authorization against spender, consumes its nonce, and
// moves details.Amount from the owner to details.To, all inside tx.
type AuthorizationVerifier interface {
	DomainSeparator() string
	PullWithSignature(ctx context.Context, tx *sql.Tx, spender ledger.Account, auth permit.TransferAuthorization, details permit.TransferDetails, sig string) error
}
