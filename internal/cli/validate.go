package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/omnibus/internal/manifest"
)

// ValidationResult holds manifest validation results for JSON output.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []manifest.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <market.cue>",
		Short: "Validate a market manifest without seeding",
		Long: `Validate a CUE market manifest without touching any database.

Shape errors (missing or mistyped fields) stop at the first problem
with its source position. Rule violations are collected so one pass
reports them all.

Examples:
  omnibus validate market.cue
  omnibus validate market.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, manifestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	market, errs := manifest.Load(manifestPath)
	if len(errs) > 0 {
		return outputManifestErrors(formatter, errs)
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ Market %q valid: %d assets, %d accounts, %d reserves, %d pools\n",
		market.Name, len(market.Assets), len(market.Accounts), len(market.Reserves), len(market.Pools))
	return nil
}

// outputManifestErrors renders manifest load failures. Rule violations
// exit 1 after all of them print; anything else (missing file, CUE
// shape error) is a command error and exits 2.
func outputManifestErrors(f *OutputFormatter, errs []error) error {
	var verrs []manifest.ValidationError
	for _, err := range errs {
		var verr manifest.ValidationError
		if errors.As(err, &verr) {
			verrs = append(verrs, verr)
		}
	}

	if len(verrs) == len(errs) && len(verrs) > 0 {
		if f.Format == "json" {
			encoder := json.NewEncoder(f.Writer)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(CLIResponse{
				Status: "error",
				Data:   ValidationResult{Valid: false, Errors: verrs},
				Error:  &CLIError{Code: verrs[0].Code, Message: "manifest validation failed"},
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(f.Writer, "✗ Validation failed")
			for _, verr := range verrs {
				fmt.Fprintf(f.Writer, "  %v\n", verr)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(verrs)))
	}

	err := errs[0]
	code := "LOAD"
	var cerr *manifest.CompileError
	if errors.As(err, &cerr) {
		code = "COMPILE"
	}
	if ferr := f.Error(code, err.Error(), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitCommandError, "load manifest", err)
}
