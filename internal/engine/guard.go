package engine

import "context"

// guardKey marks a context as belonging to a running invocation.
type guardKey struct{}

// markExecution returns ctx tagged as inside an invocation. Adapters
// and collaborators receive the tagged context, so any path from their
// code back into an entry point carries the mark.
func markExecution(ctx context.Context) context.Context {
	return context.WithValue(ctx, guardKey{}, true)
}

// inExecution reports whether ctx is already inside an invocation.
// Checked before the engine mutex: a nested call must fail fast rather
// than deadlock on the lock its own outer call holds.
func inExecution(ctx context.Context) bool {
	marked, _ := ctx.Value(guardKey{}).(bool)
	return marked
}
