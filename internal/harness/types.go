package harness

import (
	"fmt"

	"github.com/roach88/omnibus/internal/engine"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/lending"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every invocation matched its expect clause.
	Pass bool `json:"pass"`

	// Invocations records how each engine call ended, in order.
	Invocations []InvocationOutcome `json:"invocations"`

	// Errors lists expectation mismatches. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the market end state after the last invocation.
	Snapshot Snapshot `json:"snapshot"`
}

// InvocationOutcome records one engine call. Code is set when Err
// carries an engine error code.
type InvocationOutcome struct {
	Index int              `json:"index"`
	Err   error            `json:"-"`
	Code  engine.ErrorCode `json:"code,omitempty"`
}

// Snapshot is the market end state: every non-zero balance, every
// open lending position, and every pool with its live reserves.
type Snapshot struct {
	Balances  []ledger.Entry     `json:"balances"`
	Positions []lending.Position `json:"positions"`
	Pools     []PoolState        `json:"pools"`
}

// PoolState is one pool's end state, identified by its custody
// account.
type PoolState struct {
	Account     ledger.Account `json:"account"`
	Asset0      string         `json:"asset0"`
	Asset1      string         `json:"asset1"`
	FeeBps      uint32         `json:"fee_bps"`
	TickSpacing int32          `json:"tick_spacing"`
	Hook        string         `json:"hook,omitempty"`
	Reserve0    uint64         `json:"reserve0"`
	Reserve1    uint64         `json:"reserve1"`
}

func newResult() *Result {
	return &Result{Pass: true}
}

// addError records an expectation mismatch and fails the result.
func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}
