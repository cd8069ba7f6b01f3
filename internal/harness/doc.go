// Package harness runs conformance scenarios against a real engine
// stack: each scenario seeds a market manifest into a fresh in-memory
// database, submits batches through the engine's two entry points, and
// snapshots the market end state for golden comparison.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario-name
//	description: "What this scenario validates"
//	market: market.cue
//	clock: 1700000000
//	keys:
//	  alice: 1
//	setup:
//	  - transfer: {from: alice, to: engine, asset: USDC, amount: 1000}
//	invocations:
//	  - caller: alice
//	    batch:
//	      - deposit: {asset: USDC, amount: 1000}
//	  - funding: {owner: alice, token: USDC, amount: 500, nonce: 1, deadline: 1700003600}
//	    batch:
//	      - borrow: {asset: USDC, amount: 100, rate_mode: variable}
//	    expect:
//	      error: AUTHORIZATION
//	      reason: NONCE_USED
//
// Each invocation names either a caller (the pre-funded path) or a
// funding clause (the authorization path); the harness signs funding
// clauses with the scenario's registered keys. An invocation without
// an expect clause must succeed; one with an expect clause must fail
// with the named engine error code, and, when reason is set, with the
// named authorization reason.
//
// # Deterministic Execution
//
// Scenarios are reproducible byte for byte:
//
//   - The verifier clock is pinned to scenario.clock (default
//     DefaultClockUnix), so deadline checks never depend on wall time.
//   - Signing keys derive from single-byte seeds, so signatures are
//     stable across runs.
//   - The end-state snapshot orders balances, positions, and pools by
//     account and asset, and serializes through canonical JSON.
//
// The combination makes golden files safe to check in: a diff in a
// golden file is a behavior change, never noise.
package harness
