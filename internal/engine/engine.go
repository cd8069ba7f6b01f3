package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/omnibus/internal/codec"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/permit"
	"github.com/roach88/omnibus/internal/store"
	"github.com/roach88/omnibus/internal/swap"
)

// DefaultAccount is the engine's transit custody account when Config
// does not name one.
const DefaultAccount ledger.Account = "engine"

// Config fixes the engine's collaborators and identity. Captured once
// at construction; no runtime mutation path exists.
type Config struct {
	Store    *store.Store
	Ledger   AssetLedger
	Pool     LendingPool
	Router   SwapRouter
	Verifier AuthorizationVerifier

	// Account is the engine's transit account. Funds rest here only
	// within one invocation.
	Account ledger.Account

	// Referral is forwarded on every lending pool call.
	Referral uint16
}

// Engine executes batches. Safe for concurrent use: top-level
// invocations serialize on the internal mutex.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	ledger   AssetLedger
	pool     LendingPool
	router   SwapRouter
	verifier AuthorizationVerifier
	account  ledger.Account
	referral uint16
	tokens   TokenGenerator
}

// Option configures optional engine parameters.
type Option func(*Engine)

// WithTokenGenerator replaces the UUIDv7 correlation token source.
// Tests pass a FixedGenerator for deterministic log output.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = gen
	}
}

// New creates an Engine over cfg.
func New(cfg Config, opts ...Option) *Engine {
	account := cfg.Account
	if account == "" {
		account = DefaultAccount
	}

	e := &Engine{
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		pool:     cfg.Pool,
		router:   cfg.Router,
		verifier: cfg.Verifier,
		account:  account,
		referral: cfg.Referral,
		tokens:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Account returns the engine's transit account.
func (e *Engine) Account() ledger.Account {
	return e.account
}

// funding carries the authorization of a funded invocation.
type funding struct {
	auth permit.TransferAuthorization
	sig  string
}

// Execute runs batch on behalf of caller. The caller must have moved
// the funds the batch consumes into the engine account beforehand; this
// path performs no pull of its own. All effects commit together or not
// at all.
func (e *Engine) Execute(ctx context.Context, caller ledger.Account, batch codec.Batch) error {
	if inExecution(ctx) {
		return &ExecError{Code: CodeReentrancy, Index: -1, Err: errors.New("nested invocation")}
	}
	if err := e.checkCaller(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(markExecution(ctx), caller, batch, nil)
}

// ExecuteWithAuthorization runs batch funded by a signed transfer
// authorization. The caller of record is auth.Owner. The pull happens
// inside the batch transaction before any action: a failed batch
// returns the funds and leaves the nonce unconsumed.
func (e *Engine) ExecuteWithAuthorization(ctx context.Context, batch codec.Batch, auth permit.TransferAuthorization, sig string) error {
	if inExecution(ctx) {
		return &ExecError{Code: CodeReentrancy, Index: -1, Err: errors.New("nested invocation")}
	}
	if e.verifier == nil {
		return fmt.Errorf("no authorization verifier configured")
	}
	if err := e.checkCaller(auth.Owner); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(markExecution(ctx), auth.Owner, batch, &funding{auth: auth, sig: sig})
}

func (e *Engine) checkCaller(caller ledger.Account) error {
	if caller == "" {
		return fmt.Errorf("caller account is empty")
	}
	if caller == e.account {
		return fmt.Errorf("caller %q is the engine account", caller)
	}
	return nil
}

// run executes one invocation inside a single store transaction.
func (e *Engine) run(ctx context.Context, caller ledger.Account, batch codec.Batch, fund *funding) error {
	token := e.tokens.Generate()
	slog.Debug("invocation starting",
		"invocation", token,
		"caller", caller,
		"actions", len(batch),
		"funded", fund != nil,
	)

	err := e.store.InTx(ctx, func(tx *sql.Tx) error {
		touched := make(map[ledger.Asset]struct{})

		if fund != nil {
			if err := e.pullFunding(ctx, tx, token, *fund); err != nil {
				return err
			}
			touched[fund.auth.Token] = struct{}{}
		}

		for i, action := range batch {
			if err := e.dispatch(ctx, tx, token, caller, i, action, touched); err != nil {
				return err
			}
		}

		return e.settle(ctx, tx, token, caller, touched)
	})
	if err != nil {
		slog.Info("invocation aborted",
			"invocation", token,
			"caller", caller,
			"error", err,
		)
		return err
	}

	slog.Info("invocation committed",
		"invocation", token,
		"caller", caller,
		"actions", len(batch),
	)
	return nil
}

// pullFunding verifies and consumes the transfer authorization, moving
// exactly auth.Amount into the engine account. Every rejection surfaces
// as CodeAuthorization with the verifier's reason underneath.
func (e *Engine) pullFunding(ctx context.Context, tx *sql.Tx, token string, fund funding) error {
	slog.Debug("pulling authorized funding",
		"invocation", token,
		"owner", fund.auth.Owner,
		"asset", fund.auth.Token,
		"amount", fund.auth.Amount,
		"nonce", fund.auth.Nonce,
		"domain", e.verifier.DomainSeparator(),
	)

	details := permit.TransferDetails{To: e.account, Amount: fund.auth.Amount}
	if err := e.verifier.PullWithSignature(ctx, tx, e.account, fund.auth, details, fund.sig); err != nil {
		return &ExecError{Code: CodeAuthorization, Index: -1, Err: err}
	}
	return nil
}

// dispatch routes one action to the adapter for its kind. An unknown
// kind fails the whole batch before any further action runs.
func (e *Engine) dispatch(ctx context.Context, tx *sql.Tx, token string, caller ledger.Account, index int, action codec.Action, touched map[ledger.Asset]struct{}) error {
	switch action.Kind {
	case codec.KindDeposit:
		return e.runDeposit(ctx, tx, token, caller, index, action, touched)
	case codec.KindBorrow:
		return e.runBorrow(ctx, tx, token, caller, index, action, touched)
	case codec.KindSwap:
		return e.runSwap(ctx, tx, token, caller, index, action, touched)
	default:
		return &ExecError{
			Code:  CodeInvalidAction,
			Index: index,
			Kind:  action.Kind,
			Err:   fmt.Errorf("no adapter for kind %d", int(action.Kind)),
		}
	}
}

// runDeposit supplies engine-held funds to the lending pool with the
// caller as beneficial owner of the resulting position.
func (e *Engine) runDeposit(ctx context.Context, tx *sql.Tx, token string, caller ledger.Account, index int, action codec.Action, touched map[ledger.Asset]struct{}) error {
	params, err := codec.DecodeDeposit(action.Payload)
	if err != nil {
		return &ExecError{Code: CodeDecode, Index: index, Kind: action.Kind, Err: err}
	}
	asset := ledger.Asset(params.Asset)
	touched[asset] = struct{}{}

	// The allowance is set to exactly the amount, never incremented, so
	// grants cannot accumulate across batches.
	if err := e.ledger.SetAllowance(ctx, tx, e.account, e.pool.Account(), asset, params.Amount); err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}
	if err := e.pool.Deposit(ctx, tx, asset, params.Amount, e.account, caller, e.referral); err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}

	slog.Debug("deposit executed",
		"invocation", token,
		"index", index,
		"asset", asset,
		"amount", params.Amount,
		"beneficiary", caller,
	)
	return nil
}

// runBorrow borrows from the lending pool with the caller as both
// debtor of record and recipient. The borrowed funds never pass through
// the engine account.
func (e *Engine) runBorrow(ctx context.Context, tx *sql.Tx, token string, caller ledger.Account, index int, action codec.Action, touched map[ledger.Asset]struct{}) error {
	params, err := codec.DecodeBorrow(action.Payload)
	if err != nil {
		return &ExecError{Code: CodeDecode, Index: index, Kind: action.Kind, Err: err}
	}
	asset := ledger.Asset(params.Asset)
	touched[asset] = struct{}{}

	if err := e.pool.Borrow(ctx, tx, asset, params.Amount, params.RateMode, e.referral, caller); err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}

	slog.Debug("borrow executed",
		"invocation", token,
		"index", index,
		"asset", asset,
		"amount", params.Amount,
		"rate_mode", params.RateMode,
		"debtor", caller,
	)
	return nil
}

// runSwap trades engine-held input through the router and forwards the
// entire output to the caller, enforcing the slippage bound against the
// engine's whole post-swap output balance.
func (e *Engine) runSwap(ctx context.Context, tx *sql.Tx, token string, caller ledger.Account, index int, action codec.Action, touched map[ledger.Asset]struct{}) error {
	params, err := codec.DecodeSwap(action.Payload)
	if err != nil {
		return &ExecError{Code: CodeDecode, Index: index, Kind: action.Kind, Err: err}
	}

	assetIn := ledger.Asset(params.Pool.Asset0)
	assetOut := ledger.Asset(params.Pool.Asset1)
	if !params.ZeroForOne {
		assetIn, assetOut = assetOut, assetIn
	}
	touched[assetIn] = struct{}{}
	touched[assetOut] = struct{}{}

	// The slippage check below measures the engine's whole output
	// balance, so a residual from before this action would let an
	// undersized swap pass. Zero on entry is asserted, not assumed.
	held, err := e.ledger.Balance(ctx, tx, e.account, assetOut)
	if err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}
	if held != 0 {
		return &ExecError{
			Code:  CodeResidualBalance,
			Index: index,
			Kind:  action.Kind,
			Err:   fmt.Errorf("engine holds %d %s before swap", held, assetOut),
		}
	}

	pool, err := e.router.PoolFor(ctx, tx, params.Pool)
	if err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}
	if err := e.ledger.SetAllowance(ctx, tx, e.account, pool.Account, assetIn, params.AmountIn); err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}

	req := swap.Request{ZeroForOne: params.ZeroForOne, AmountIn: params.AmountIn}
	settle := swap.Settlement{Payer: e.account, Recipient: e.account}
	res, err := e.router.Swap(ctx, tx, params.Pool, req, settle, nil)
	if err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}

	output, err := e.ledger.Balance(ctx, tx, e.account, assetOut)
	if err != nil {
		return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
	}
	if output < params.MinAmountOut {
		return &ExecError{
			Code:  CodeSwapOutput,
			Index: index,
			Kind:  action.Kind,
			Err:   fmt.Errorf("output %d %s below minimum %d", output, assetOut, params.MinAmountOut),
		}
	}
	if output > 0 {
		if err := e.ledger.Transfer(ctx, tx, e.account, caller, assetOut, output); err != nil {
			return &ExecError{Code: CodeExternalCall, Index: index, Kind: action.Kind, Err: err}
		}
	}

	slog.Debug("swap executed",
		"invocation", token,
		"index", index,
		"pool", pool.ID,
		"asset_in", assetIn,
		"amount_in", res.AmountIn,
		"asset_out", assetOut,
		"amount_out", res.AmountOut,
		"fee", res.Fee,
	)
	return nil
}

// settle sweeps any residual engine balance of every touched asset back
// to the caller, then asserts the engine holds zero of each. Assets are
// visited in sorted order for deterministic failure and log output.
func (e *Engine) settle(ctx context.Context, tx *sql.Tx, token string, caller ledger.Account, touched map[ledger.Asset]struct{}) error {
	assets := make([]ledger.Asset, 0, len(touched))
	for asset := range touched {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	for _, asset := range assets {
		held, err := e.ledger.Balance(ctx, tx, e.account, asset)
		if err != nil {
			return &ExecError{Code: CodeExternalCall, Index: -1, Err: err}
		}
		if held > 0 {
			if err := e.ledger.Transfer(ctx, tx, e.account, caller, asset, held); err != nil {
				return &ExecError{Code: CodeExternalCall, Index: -1, Err: err}
			}
			slog.Debug("residual swept",
				"invocation", token,
				"asset", asset,
				"amount", held,
				"to", caller,
			)
		}

		after, err := e.ledger.Balance(ctx, tx, e.account, asset)
		if err != nil {
			return &ExecError{Code: CodeExternalCall, Index: -1, Err: err}
		}
		if after != 0 {
			return &ExecError{
				Code:  CodeResidualBalance,
				Index: -1,
				Err:   fmt.Errorf("engine retains %d %s after settlement", after, asset),
			}
		}
	}
	return nil
}
