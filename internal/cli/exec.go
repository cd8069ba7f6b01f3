package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/omnibus/internal/engine"
	"github.com/roach88/omnibus/internal/harness"
	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/permit"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	KeyFile string
}

// invocationFile is the YAML shape exec submits: one entry point plus
// the batch, using the same action forms scenarios use.
type invocationFile struct {
	Caller  string                `yaml:"caller,omitempty"`
	Funding *fundingFile          `yaml:"funding,omitempty"`
	Batch   []harness.BatchAction `yaml:"batch"`
}

// fundingFile is the transfer authorization of a funded invocation.
// The signature comes from the key file, not the YAML.
type fundingFile struct {
	Owner    string `yaml:"owner"`
	Token    string `yaml:"token"`
	Amount   uint64 `yaml:"amount"`
	Nonce    int64  `yaml:"nonce"`
	Deadline int64  `yaml:"deadline"`
}

// ExecResult reports a settled batch in JSON output.
type ExecResult struct {
	Actions int    `json:"actions"`
	Caller  string `json:"caller,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <invocation.yaml>",
		Short: "Execute an action batch against the market",
		Long: `Execute an ordered action batch atomically against the market.

The invocation file names either a caller, for batches spending funds
the engine already holds or is allowed to pull, or a funding clause,
for batches staked by a signed transfer authorization. Funded batches
need --key with the owner's key file; the authorization is signed
locally and submitted with the batch.

The batch settles completely or not at all. A failed batch leaves
every balance as it was.

Examples:
  omnibus exec batch.yaml
  omnibus exec batch.yaml --key alice.key
  omnibus exec batch.yaml --db devnet.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.KeyFile, "key", "", "key file signing the funding authorization")

	return cmd
}

func runExec(opts *ExecOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	inv, err := loadInvocationFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load invocation", err)
	}

	batch, err := harness.BuildBatch(inv.Batch)
	if err != nil {
		return WrapExitError(ExitCommandError, "build batch", err)
	}

	s, err := openStack(opts.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	result := ExecResult{Actions: len(batch)}

	if inv.Funding == nil {
		result.Caller = inv.Caller
		formatter.VerboseLog("executing %d action(s) as %s", len(batch), inv.Caller)
		err = s.engine.Execute(ctx, ledger.Account(inv.Caller), batch)
	} else {
		f := inv.Funding
		result.Owner = f.Owner
		auth := permit.TransferAuthorization{
			Owner:    ledger.Account(f.Owner),
			Token:    ledger.Asset(f.Token),
			Amount:   f.Amount,
			Nonce:    f.Nonce,
			Deadline: f.Deadline,
		}

		priv, kerr := readKeyFile(opts.KeyFile)
		if kerr != nil {
			return WrapExitError(ExitCommandError, "load signing key", kerr)
		}
		sig, serr := permit.Sign(priv, s.verifier.DomainSeparator(), s.engine.Account(), auth)
		if serr != nil {
			return WrapExitError(ExitCommandError, "sign authorization", serr)
		}

		formatter.VerboseLog("executing %d action(s) funded by %s: %d %s", len(batch), f.Owner, f.Amount, f.Token)
		err = s.engine.ExecuteWithAuthorization(ctx, batch, auth, sig)
	}

	if err != nil {
		if code, ok := engine.CodeOf(err); ok {
			if ferr := formatter.Error(string(code), err.Error(), nil); ferr != nil {
				return ferr
			}
			return WrapExitError(ExitFailure, "batch aborted", err)
		}
		return WrapExitError(ExitCommandError, "execute batch", err)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	who := result.Caller
	if who == "" {
		who = result.Owner
	}
	fmt.Fprintf(formatter.Writer, "✓ Batch settled: %d action(s) for %s\n", result.Actions, who)
	return nil
}

// loadInvocationFile reads and validates an invocation file. Unknown
// fields are errors so typos surface instead of silently dropping
// parts of the batch.
func loadInvocationFile(path string) (*invocationFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var inv invocationFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&inv); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if (inv.Caller == "") == (inv.Funding == nil) {
		return nil, fmt.Errorf("%s: exactly one of caller or funding is required", path)
	}
	if inv.Batch == nil {
		return nil, fmt.Errorf("%s: batch is required (use [] for an empty batch)", path)
	}
	if f := inv.Funding; f != nil {
		if f.Owner == "" {
			return nil, fmt.Errorf("%s: funding owner is required", path)
		}
		if f.Token == "" {
			return nil, fmt.Errorf("%s: funding token is required", path)
		}
	}

	return &inv, nil
}
