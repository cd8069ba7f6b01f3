package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/omnibus/internal/engine"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/lending"
	"github.com/roach88/omnibus/internal/manifest"
	"github.com/roach88/omnibus/internal/permit"
	"github.com/roach88/omnibus/internal/store"
	"github.com/roach88/omnibus/internal/swap"
	"github.com/roach88/omnibus/internal/testutil"
)

// DefaultClockUnix is the verifier clock instant scenarios run at when
// they do not pin their own.
const DefaultClockUnix int64 = 1_700_000_000

// Run executes a scenario against a fresh market stack and returns the
// per-invocation outcomes plus the end-state snapshot.
//
// The returned error covers infrastructure failures only: an unloadable
// market, a broken setup step, a snapshot that cannot be read. An
// invocation that contradicts its expect clause does not error; it
// lands in Result.Errors with Pass set to false, so a runner can report
// every mismatch in one pass.
func Run(scenario *Scenario) (*Result, error) {
	market, errs := manifest.Load(scenario.Market)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load market %s: %w", scenario.Market, errors.Join(errs...))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clockUnix := scenario.Clock
	if clockUnix == 0 {
		clockUnix = DefaultClockUnix
	}
	now := time.Unix(clockUnix, 0)

	l := ledger.New()
	pool := lending.NewPool(l)
	router := swap.NewRouter(l)
	verifier := permit.NewVerifier(l, permit.WithClock(func() time.Time { return now }))
	eng := engine.New(engine.Config{
		Store:    st,
		Ledger:   l,
		Pool:     pool,
		Router:   router,
		Verifier: verifier,
	})

	ctx := context.Background()
	err = st.InTx(ctx, func(tx *sql.Tx) error {
		if err := manifest.Seed(ctx, tx, market, manifest.Target{
			Ledger:   l,
			Pool:     pool,
			Router:   router,
			Verifier: verifier,
		}); err != nil {
			return fmt.Errorf("seed market: %w", err)
		}
		for _, account := range sortedAccounts(scenario.Keys) {
			hexKey := testutil.PublicHex(scenario.Keys[account])
			if err := verifier.RegisterKey(ctx, tx, ledger.Account(account), hexKey); err != nil {
				return fmt.Errorf("register key for %s: %w", account, err)
			}
		}
		for i, step := range scenario.Setup {
			if err := applySetup(ctx, tx, l, step); err != nil {
				return fmt.Errorf("setup[%d]: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := newResult()
	for i, inv := range scenario.Invocations {
		outcome := runInvocation(ctx, eng, verifier, scenario, i, inv)
		result.Invocations = append(result.Invocations, outcome)
		checkExpect(result, inv.Expect, outcome)
	}

	err = st.InTx(ctx, func(tx *sql.Tx) error {
		snap, err := takeSnapshot(ctx, tx, l, pool, router)
		if err != nil {
			return err
		}
		result.Snapshot = snap
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	return result, nil
}

func sortedAccounts(keys map[string]uint8) []string {
	accounts := make([]string, 0, len(keys))
	for account := range keys {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

func applySetup(ctx context.Context, tx *sql.Tx, l *ledger.Ledger, step SetupStep) error {
	switch {
	case step.Transfer != nil:
		t := step.Transfer
		return l.Transfer(ctx, tx, ledger.Account(t.From), ledger.Account(t.To), ledger.Asset(t.Asset), t.Amount)
	case step.Mint != nil:
		m := step.Mint
		return l.Mint(ctx, tx, ledger.Account(m.Account), ledger.Asset(m.Asset), m.Amount)
	default:
		return fmt.Errorf("empty setup step")
	}
}

// runInvocation submits one invocation through the entry point it
// names. Failures land in the outcome; the caller judges them against
// the expect clause.
func runInvocation(ctx context.Context, eng *engine.Engine, verifier *permit.Verifier, scenario *Scenario, index int, inv Invocation) InvocationOutcome {
	outcome := InvocationOutcome{Index: index}

	batch, err := BuildBatch(inv.Batch)
	if err != nil {
		outcome.Err = fmt.Errorf("build batch: %w", err)
		return outcome
	}

	if inv.Funding == nil {
		outcome.Err = eng.Execute(ctx, ledger.Account(inv.Caller), batch)
	} else {
		f := inv.Funding
		auth := permit.TransferAuthorization{
			Owner:    ledger.Account(f.Owner),
			Token:    ledger.Asset(f.Token),
			Amount:   f.Amount,
			Nonce:    f.Nonce,
			Deadline: f.Deadline,
		}
		signer := f.Signer
		if signer == "" {
			signer = f.Owner
		}
		sig, err := permit.Sign(testutil.Key(scenario.Keys[signer]), verifier.DomainSeparator(), eng.Account(), auth)
		if err != nil {
			outcome.Err = fmt.Errorf("sign authorization: %w", err)
			return outcome
		}
		outcome.Err = eng.ExecuteWithAuthorization(ctx, batch, auth, sig)
	}

	if code, ok := engine.CodeOf(outcome.Err); ok {
		outcome.Code = code
	}
	return outcome
}

// checkExpect judges an outcome against its expect clause and records
// any mismatch on the result.
func checkExpect(result *Result, expect *ExpectClause, outcome InvocationOutcome) {
	if expect == nil {
		if outcome.Err != nil {
			result.addError("invocation %d: expected success, got: %v", outcome.Index, outcome.Err)
		}
		return
	}

	if outcome.Err == nil {
		result.addError("invocation %d: expected %s, got success", outcome.Index, expect.Error)
		return
	}
	if string(outcome.Code) != expect.Error {
		result.addError("invocation %d: expected %s, got: %v", outcome.Index, expect.Error, outcome.Err)
		return
	}
	if expect.Reason != "" {
		reason, ok := permit.ReasonOf(outcome.Err)
		if !ok || string(reason) != expect.Reason {
			result.addError("invocation %d: expected reason %s, got: %v", outcome.Index, expect.Reason, outcome.Err)
		}
	}
}

// takeSnapshot reads the whole market end state in one transaction.
// Pools come back sorted by custody account so multi-pool markets
// snapshot in a stable, human-predictable order.
func takeSnapshot(ctx context.Context, tx *sql.Tx, l *ledger.Ledger, pool *lending.Pool, router *swap.Router) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Balances, err = l.Balances(ctx, tx); err != nil {
		return Snapshot{}, fmt.Errorf("balances: %w", err)
	}
	if snap.Positions, err = pool.Positions(ctx, tx); err != nil {
		return Snapshot{}, fmt.Errorf("positions: %w", err)
	}

	pools, err := router.Pools(ctx, tx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pools: %w", err)
	}
	for _, p := range pools {
		reserve0, reserve1, err := router.Reserves(ctx, tx, p)
		if err != nil {
			return Snapshot{}, fmt.Errorf("reserves for %s: %w", p.Account, err)
		}
		snap.Pools = append(snap.Pools, PoolState{
			Account:     p.Account,
			Asset0:      p.Key.Asset0,
			Asset1:      p.Key.Asset1,
			FeeBps:      p.Key.FeeBps,
			TickSpacing: p.Key.TickSpacing,
			Hook:        p.Key.Hook,
			Reserve0:    reserve0,
			Reserve1:    reserve1,
		})
	}
	sort.Slice(snap.Pools, func(i, j int) bool {
		return snap.Pools[i].Account < snap.Pools[j].Account
	})

	return snap, nil
}
