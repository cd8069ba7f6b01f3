package cli

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/omnibus/internal/ledger"
	"github.com/roach88/omnibus/internal/permit"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Out      string
	Register string
}

// KeygenResult reports a generated key in JSON output.
type KeygenResult struct {
	PublicKey string `json:"public_key"`
	KeyFile   string `json:"key_file,omitempty"`
	Account   string `json:"account,omitempty"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long: `Generate an ed25519 signing key for funding authorizations.

The private seed lands in the --out key file, readable only by the
owner. With --register the public key is also bound to an account in
the market database, replacing any key already bound there.

Examples:
  omnibus keygen --out alice.key
  omnibus keygen --out alice.key --register alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "key file to write (required)")
	cmd.Flags().StringVar(&opts.Register, "register", "", "account to bind the key to in the market database")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return WrapExitError(ExitCommandError, "generate key", err)
	}
	pubHex := permit.PublicKeyHex(priv)

	if err := writeKeyFile(opts.Out, priv); err != nil {
		return WrapExitError(ExitCommandError, "write key file", err)
	}

	result := KeygenResult{PublicKey: pubHex, KeyFile: opts.Out}

	if opts.Register != "" {
		s, err := openStack(opts.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()
		err = s.store.InTx(ctx, func(tx *sql.Tx) error {
			return s.verifier.RegisterKey(ctx, tx, ledger.Account(opts.Register), pubHex)
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "register key", err)
		}
		result.Account = opts.Register
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Key written to %s\n", result.KeyFile)
	fmt.Fprintf(formatter.Writer, "  Public key: %s\n", result.PublicKey)
	if result.Account != "" {
		fmt.Fprintf(formatter.Writer, "  Registered: %s\n", result.Account)
	}
	return nil
}
