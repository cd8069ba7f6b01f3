package cli

import (
	"fmt"
	"os"

	"github.com/roach88/omnibus/internal/engine"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/lending"
	"github.com/roach88/omnibus/internal/permit"
	"github.com/roach88/omnibus/internal/store"
	"github.com/roach88/omnibus/internal/swap"
)

// stack wires the full market over one database handle. Commands open
// a stack per run and close it when done.
type stack struct {
	store    *store.Store
	ledger   *ledger.Ledger
	pool     *lending.Pool
	router   *swap.Router
	verifier *permit.Verifier
	engine   *engine.Engine
}

// openStack opens an existing market database. Missing databases are a
// command error pointing at init.
func openStack(dbPath string) (*stack, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("market database not found: %s (run 'omnibus init' first)", dbPath))
	}
	return newStack(dbPath)
}

// newStack opens dbPath, creating it if needed, and wires every
// component over it.
func newStack(dbPath string) (*stack, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open market database", err)
	}

	l := ledger.New()
	pool := lending.NewPool(l)
	router := swap.NewRouter(l)
	verifier := permit.NewVerifier(l)
	eng := engine.New(engine.Config{
		Store:    st,
		Ledger:   l,
		Pool:     pool,
		Router:   router,
		Verifier: verifier,
	})

	return &stack{
		store:    st,
		ledger:   l,
		pool:     pool,
		router:   router,
		verifier: verifier,
		engine:   eng,
	}, nil
}

func (s *stack) Close() error {
	return s.store.Close()
}
