package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/omnibus/internal/canon"
)

// canonicalMap renders the snapshot for golden comparison. Canonical
// JSON keeps the serialized bytes identical across runs and platforms.
func (s Snapshot) canonicalMap(scenarioName string) map[string]any {
	balances := make([]any, len(s.Balances))
	for i, e := range s.Balances {
		balances[i] = map[string]any{
			"account": string(e.Account),
			"asset":   string(e.Asset),
			"amount":  e.Amount,
		}
	}

	positions := make([]any, len(s.Positions))
	for i, p := range s.Positions {
		positions[i] = map[string]any{
			"account":       string(p.Account),
			"asset":         string(p.Asset),
			"supplied":      p.Supplied,
			"stable_debt":   p.StableDebt,
			"variable_debt": p.VariableDebt,
		}
	}

	pools := make([]any, len(s.Pools))
	for i, p := range s.Pools {
		entry := map[string]any{
			"account":      string(p.Account),
			"asset0":       p.Asset0,
			"asset1":       p.Asset1,
			"fee_bps":      int64(p.FeeBps),
			"tick_spacing": int64(p.TickSpacing),
			"reserve0":     p.Reserve0,
			"reserve1":     p.Reserve1,
		}
		if p.Hook != "" {
			entry["hook"] = p.Hook
		}
		pools[i] = entry
	}

	return map[string]any{
		"scenario":  scenarioName,
		"balances":  balances,
		"positions": positions,
		"pools":     pools,
	}
}

// CanonicalJSON renders the snapshot as the canonical bytes golden
// files store: compact JSON with sorted keys and no trailing newline.
func (s Snapshot) CanonicalJSON(scenarioName string) ([]byte, error) {
	return canon.Marshal(s.canonicalMap(scenarioName))
}

// RunGolden executes the scenario at path and compares its end-state
// snapshot against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden comparison failures surface through t; the returned error
// covers scenario loading and execution failures only.
func RunGolden(t *testing.T, path string) (*Result, error) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result.Snapshot); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a snapshot against the golden file named after
// the scenario. Useful when the caller has already run the scenario
// and holds the result.
func AssertGolden(t *testing.T, scenarioName string, snap Snapshot) error {
	t.Helper()

	data, err := snap.CanonicalJSON(scenarioName)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
