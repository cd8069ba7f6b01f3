// Package engine implements the omnibus batch executor.
//
// The engine is the heart of omnibus - it accepts an ordered batch of
// opaque actions, routes each action to the adapter for its kind, and
// guarantees the whole batch commits or none of it does.
//
// ARCHITECTURE:
//
// One Transaction Per Invocation:
// Every entry point opens a single store transaction that spans the
// optional authorization pull, every action in the batch, and the final
// settlement sweep. Rolling that transaction back is the atomicity
// mechanism: there is no compensation logic and no partial commit.
//
// Invocation Flow:
//  1. Re-entrancy check on the incoming context, then the engine mutex
//  2. Funded variant only: verify and consume the transfer
//     authorization, pulling its amount into the engine account
//  3. For each action in order: validate kind, decode payload, run the
//     matching adapter against the external protocols
//  4. Settlement: sweep every touched asset's residual engine balance
//     back to the caller and assert the engine holds zero of each
//  5. Commit; any error anywhere instead rolls back the transaction
//
// The engine account is a transit account. Funds rest there only within
// the span of one invocation; the zero-residual assertion at settlement
// makes that an enforced invariant rather than a convention.
//
// Actions within a batch are strictly sequential - later actions may
// consume balances produced by earlier ones. Concurrent top-level
// invocations serialize on the engine mutex; a nested invocation from
// inside an adapter or collaborator is detected via the context mark
// and fails with CodeReentrancy before touching the mutex.
package engine
