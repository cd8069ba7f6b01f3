package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/omnibus/internal/ledger"
)

// BalanceRow is one balance line in JSON output.
type BalanceRow struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
}

// NewBalancesCommand creates the balances command.
func NewBalancesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balances [account]",
		Short: "List market balances",
		Long: `List non-zero balances, for one account or the whole market.

Rows come back in (account, asset) order, so output is stable across
runs. Pool custody accounts appear alongside user accounts; the sum
per asset never changes across batches.

Examples:
  omnibus balances
  omnibus balances alice
  omnibus balances --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			account := ""
			if len(args) == 1 {
				account = args[0]
			}
			return runBalances(rootOpts, account, cmd)
		},
	}

	return cmd
}

func runBalances(opts *RootOptions, account string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, err := openStack(opts.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	var rows []BalanceRow
	err = s.store.InTx(ctx, func(tx *sql.Tx) error {
		if account != "" {
			holdings, err := s.ledger.AccountBalances(ctx, tx, ledger.Account(account))
			if err != nil {
				return err
			}
			for _, h := range holdings {
				rows = append(rows, BalanceRow{Account: account, Asset: string(h.Asset), Amount: h.Amount})
			}
			return nil
		}

		entries, err := s.ledger.Balances(ctx, tx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rows = append(rows, BalanceRow{Account: string(e.Account), Asset: string(e.Asset), Amount: e.Amount})
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "read balances", err)
	}

	if opts.Format == "json" {
		if rows == nil {
			rows = []BalanceRow{}
		}
		return formatter.Success(rows)
	}

	if len(rows) == 0 {
		if account != "" {
			fmt.Fprintf(formatter.Writer, "No balances for %s\n", account)
		} else {
			fmt.Fprintln(formatter.Writer, "No balances")
		}
		return nil
	}

	fmt.Fprintf(formatter.Writer, "%-24s %-12s %14s\n", "ACCOUNT", "ASSET", "AMOUNT")
	for _, row := range rows {
		fmt.Fprintf(formatter.Writer, "%-24s %-12s %14d\n", row.Account, row.Asset, row.Amount)
	}
	return nil
}
