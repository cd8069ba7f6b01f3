package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/omnibus/internal/codec"
)

// Scenario defines one conformance run: the market it executes in, the
// invocations it submits, and what each invocation should produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Market is the path to the CUE market manifest to seed. Relative
	// paths resolve against the scenario file's directory.
	Market string `yaml:"market"`

	// Clock pins the verifier clock to a Unix second. Funding deadlines
	// are judged against it. Zero means DefaultClockUnix.
	Clock int64 `yaml:"clock,omitempty"`

	// Keys maps account names to deterministic key seeds. The harness
	// registers each derived public key after seeding, so a scenario
	// key overrides a manifest key for the same account.
	Keys map[string]uint8 `yaml:"keys,omitempty"`

	// Setup stages balances before any invocation runs. Steps execute
	// in order inside the seeding transaction.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Invocations are submitted to the engine in order. Each runs in
	// its own transaction; a failed one rolls back and the next still
	// runs.
	Invocations []Invocation `yaml:"invocations"`
}

// SetupStep stages ledger state. Exactly one member is set.
type SetupStep struct {
	Transfer *TransferStep `yaml:"transfer,omitempty"`
	Mint     *MintStep     `yaml:"mint,omitempty"`
}

// TransferStep moves seeded funds between accounts, typically into
// engine custody ahead of a pre-funded invocation.
type TransferStep struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Asset  string `yaml:"asset"`
	Amount uint64 `yaml:"amount"`
}

// MintStep creates fresh units. Market manifests cover normal funding;
// mint exists for staging edge states the manifest cannot express.
type MintStep struct {
	Account string `yaml:"account"`
	Asset   string `yaml:"asset"`
	Amount  uint64 `yaml:"amount"`
}

// Invocation is one engine call. Exactly one of Caller (the pre-funded
// path) or Funding (the authorization path) is set.
type Invocation struct {
	Caller  string        `yaml:"caller,omitempty"`
	Funding *FundingSpec  `yaml:"funding,omitempty"`
	Batch   []BatchAction `yaml:"batch"`
	Expect  *ExpectClause `yaml:"expect,omitempty"`
}

// FundingSpec is a transfer authorization to sign and submit with the
// batch. The owner is the caller of record.
type FundingSpec struct {
	Owner    string `yaml:"owner"`
	Token    string `yaml:"token"`
	Amount   uint64 `yaml:"amount"`
	Nonce    int64  `yaml:"nonce"`
	Deadline int64  `yaml:"deadline"`

	// Signer names the scenario key that signs; empty means Owner.
	// Pointing it at a different account forges a bad signature on
	// purpose.
	Signer string `yaml:"signer,omitempty"`
}

// BatchAction is one action in a batch. Exactly one member is set.
type BatchAction struct {
	Deposit *DepositAction `yaml:"deposit,omitempty"`
	Borrow  *BorrowAction  `yaml:"borrow,omitempty"`
	Swap    *SwapAction    `yaml:"swap,omitempty"`
	Raw     *RawAction     `yaml:"raw,omitempty"`
}

// DepositAction supplies amount base units of asset as collateral.
type DepositAction struct {
	Asset  string `yaml:"asset"`
	Amount uint64 `yaml:"amount"`
}

// BorrowAction draws amount base units of asset under the given rate
// mode ("stable" or "variable").
type BorrowAction struct {
	Asset    string `yaml:"asset"`
	Amount   uint64 `yaml:"amount"`
	RateMode string `yaml:"rate_mode"`
}

// SwapAction swaps an exact input against the referenced pool.
type SwapAction struct {
	Pool         PoolRef `yaml:"pool"`
	ZeroForOne   bool    `yaml:"zero_for_one"`
	AmountIn     uint64  `yaml:"amount_in"`
	MinAmountOut uint64  `yaml:"min_amount_out"`
}

// PoolRef spells out a pool key field by field.
type PoolRef struct {
	Asset0      string `yaml:"asset0"`
	Asset1      string `yaml:"asset1"`
	FeeBps      uint32 `yaml:"fee_bps"`
	TickSpacing int32  `yaml:"tick_spacing"`
	Hook        string `yaml:"hook,omitempty"`
}

// RawAction submits an arbitrary kind and payload verbatim, bypassing
// the builders. Scenarios use it to exercise decode and dispatch
// failures.
type RawAction struct {
	Kind    int    `yaml:"kind"`
	Payload string `yaml:"payload"`
}

// ExpectClause specifies the expected outcome of an invocation. A
// missing clause means the invocation must succeed.
type ExpectClause struct {
	// Error is the expected engine error code, e.g. "DECODE" or
	// "AUTHORIZATION".
	Error string `yaml:"error"`

	// Reason is the expected authorization rejection reason, checked
	// only when set, e.g. "NONCE_USED".
	Reason string `yaml:"reason,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. It rejects
// unknown fields (typos), missing required fields, and invocations
// that name neither or both entry points. The market path comes back
// resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if scenario.Market != "" && !filepath.IsAbs(scenario.Market) {
		scenario.Market = filepath.Join(filepath.Dir(path), scenario.Market)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and that
// every step is well formed.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Market == "" {
		return fmt.Errorf("market is required")
	}
	if _, err := os.Stat(s.Market); err != nil {
		return fmt.Errorf("market manifest not found: %s", s.Market)
	}
	if len(s.Invocations) == 0 {
		return fmt.Errorf("invocations list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateSetupStep(i, step); err != nil {
			return err
		}
	}

	for i, inv := range s.Invocations {
		if err := validateInvocation(i, inv, s.Keys); err != nil {
			return err
		}
	}

	return nil
}

func validateSetupStep(index int, step SetupStep) error {
	set := 0
	if step.Transfer != nil {
		set++
	}
	if step.Mint != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("setup[%d]: exactly one of transfer or mint is required", index)
	}
	return nil
}

func validateInvocation(index int, inv Invocation, keys map[string]uint8) error {
	if (inv.Caller == "") == (inv.Funding == nil) {
		return fmt.Errorf("invocations[%d]: exactly one of caller or funding is required", index)
	}
	if inv.Batch == nil {
		return fmt.Errorf("invocations[%d]: batch is required (use [] for an empty batch)", index)
	}

	if f := inv.Funding; f != nil {
		if f.Owner == "" {
			return fmt.Errorf("invocations[%d].funding: owner is required", index)
		}
		if f.Token == "" {
			return fmt.Errorf("invocations[%d].funding: token is required", index)
		}
		signer := f.Signer
		if signer == "" {
			signer = f.Owner
		}
		if _, ok := keys[signer]; !ok {
			return fmt.Errorf("invocations[%d].funding: no scenario key for signer %q", index, signer)
		}
	}

	for j, action := range inv.Batch {
		if err := validateBatchAction(index, j, action); err != nil {
			return err
		}
	}

	if inv.Expect != nil && inv.Expect.Error == "" {
		return fmt.Errorf("invocations[%d].expect: error is required", index)
	}

	return nil
}

// validateBatchAction dry-runs the action build so load-time checks
// match run-time behavior exactly.
func validateBatchAction(inv, index int, a BatchAction) error {
	if _, err := a.Action(); err != nil {
		return fmt.Errorf("invocations[%d].batch[%d]: %w", inv, index, err)
	}
	return nil
}

// Action compiles the YAML form through the canonical builders, so
// payloads are byte-identical to what client code produces. Exactly
// one member must be set.
func (a BatchAction) Action() (codec.Action, error) {
	set := 0
	if a.Deposit != nil {
		set++
	}
	if a.Borrow != nil {
		set++
	}
	if a.Swap != nil {
		set++
	}
	if a.Raw != nil {
		set++
	}
	if set != 1 {
		return codec.Action{}, fmt.Errorf("exactly one action member is required")
	}

	switch {
	case a.Deposit != nil:
		return codec.BuildDeposit(a.Deposit.Asset, a.Deposit.Amount)
	case a.Borrow != nil:
		mode, err := codec.ParseRateMode(a.Borrow.RateMode)
		if err != nil {
			return codec.Action{}, err
		}
		return codec.BuildBorrow(a.Borrow.Asset, a.Borrow.Amount, mode)
	case a.Swap != nil:
		if a.Swap.Pool.Asset0 == "" || a.Swap.Pool.Asset1 == "" {
			return codec.Action{}, fmt.Errorf("pool asset0 and asset1 are required")
		}
		return codec.BuildSwap(a.Swap.Pool.key(), a.Swap.ZeroForOne, a.Swap.AmountIn, a.Swap.MinAmountOut)
	default:
		return codec.Action{Kind: codec.Kind(a.Raw.Kind), Payload: []byte(a.Raw.Payload)}, nil
	}
}

// BuildBatch compiles a list of YAML actions into an executable batch.
func BuildBatch(actions []BatchAction) (codec.Batch, error) {
	batch := make(codec.Batch, 0, len(actions))
	for i, a := range actions {
		action, err := a.Action()
		if err != nil {
			return nil, fmt.Errorf("batch[%d]: %w", i, err)
		}
		batch = append(batch, action)
	}
	return batch, nil
}

func (p PoolRef) key() codec.PoolKey {
	return codec.PoolKey{
		Asset0:      p.Asset0,
		Asset1:      p.Asset1,
		FeeBps:      p.FeeBps,
		TickSpacing: p.TickSpacing,
		Hook:        p.Hook,
	}
}
