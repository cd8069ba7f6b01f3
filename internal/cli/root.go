package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	DBPath  string
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the omnibus CLI.
func NewRootCommand() *cobra.Command {
	cfg := LoadConfigFromEnv()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "omnibus",
		Short: "Omnibus batched-action execution engine",
		Long: `Omnibus executes ordered action batches atomically against a market:
lending deposits and borrows, exact-input swaps, all settling in one
transaction with nothing left in transit.

A market lives in a sqlite database seeded from a CUE manifest. Batches
arrive pre-funded or carry a signed transfer authorization.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", cfg.DBPath, "market database path")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewBalancesCommand(opts))
	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
