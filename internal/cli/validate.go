package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumenhq/offworker/internal/config"
)

// ValidationResult holds validation output for the JSON format.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a config file without starting the agent",
		Long: `Check a YAML config file against the configuration schema.

Reports every violation with its field path and line, without opening
the database or touching the network.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	errs := config.Validate(path, data)

	// Schema-valid files can still carry semantic problems (bad origin
	// URL, unparseable interval); Parse catches those.
	if len(errs) == 0 {
		if _, err := config.Parse(path, data); err != nil {
			errs = append(errs, config.ValidationError{Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		if formatter.Format == "json" {
			_ = formatter.Error(ErrCodeInvalidConfig, "config validation failed", ValidationResult{
				Valid:  false,
				Errors: errs,
			})
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			fmt.Fprintln(formatter.Writer)
			for _, e := range errs {
				fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	formatter.VerboseLog("validated %s", path)
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Config valid")
	return nil
}
