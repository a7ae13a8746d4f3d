package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsched/internal/compiler"
	"github.com/roach88/assetsched/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Assets   int                        `json:"assets"`
	Policies int                        `json:"policies"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

func (r ValidationResult) RenderText(w io.Writer) {
	if r.Valid {
		fmt.Fprintf(w, "✓ All definitions valid (%d assets, %d policies)\n", r.Assets, r.Policies)
		return
	}
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range r.Errors {
		if err.Source != "" {
			fmt.Fprintln(w, err.Source)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definitions>...",
		Short: "Validate asset definitions",
		Long: `Validate CUE or YAML asset definitions without touching a database.

Checks syntax, asset keys, dependencies, partitions, conditions and policies,
then builds the asset graph to catch cycles. When --config is given the
config file is validated too.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result, err := validateDefinitions(paths)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoad, "failed to load definitions", err)
	}
	formatter.VerboseLog("Validated %d asset(s) in %v", result.Assets, paths)

	if opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
		}
		var verrs config.ValidationErrors
		if errors.As(config.Validate(cfg), &verrs) {
			for _, v := range verrs {
				result.Errors = append(result.Errors, compiler.ValidationError{
					Field:   "config." + v.Field,
					Message: v.Message,
					Code:    ErrCodeConfig,
					Source:  opts.ConfigPath,
				})
			}
			result.Valid = false
		}
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

// validateDefinitions loads and compiles paths. Problems in the definitions
// come back in the result; only unreadable paths are errors.
func validateDefinitions(paths []string) (ValidationResult, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return ValidationResult{}, err
		}
	}

	defs, err := compiler.Load(paths...)
	if err == nil {
		_, err = compiler.Compile(defs, compiler.Options{})
	}

	result := ValidationResult{Valid: err == nil}
	if defs != nil {
		result.Assets = len(defs.Assets)
		result.Policies = len(defs.Policies)
	}

	var (
		verrs compiler.ValidationErrors
		cerr  *compiler.CompileError
	)
	switch {
	case err == nil:
	case errors.As(err, &verrs):
		result.Errors = verrs
	case errors.As(err, &cerr):
		result.Errors = []compiler.ValidationError{{
			Field:   cerr.Field,
			Message: cerr.Message,
			Code:    cerr.Code,
			Source:  cerr.Source.String(),
		}}
	default:
		return ValidationResult{}, err
	}
	return result, nil
}
