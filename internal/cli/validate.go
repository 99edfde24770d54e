package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/latch/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Check a rules directory without running it",
		Long: `Load every CUE file in a rules directory, compile the rule and
lifecycle blocks and report all problems at once.

Zero-dwell rule cycles are reported as warnings; they do not fail
validation.`,
		Example: `  latch validate ./rules
  latch validate ./rules --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	return cmd
}

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Rules     int                        `json:"rules"`
	Canonical bool                       `json:"canonical"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
	Warnings  []compiler.CycleWarning    `json:"warnings,omitempty"`
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, dir string) error {
	out := opts.formatter(cmd)
	out.VerboseLog("Validating rules in %s", dir)

	result, loadErrs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(loadErrs) > 0 {
		messages := make([]string, 0, len(loadErrs))
		for _, err := range loadErrs {
			messages = append(messages, err.Error())
		}
		if opts.Format == "json" {
			if err := out.Error(CodeLoadFailed, "failed to load rules", messages); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ Failed to load %s\n", dir)
			for _, m := range messages {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", m)
			}
		}
		return NewExitError(ExitCommandError, "failed to load rules")
	}

	errs := append(compiler.ValidateConfig(result.Config), compiler.Validate(result.Rules)...)
	warnings := compiler.AnalyzeCycles(result.Rules)

	res := ValidationResult{
		Valid:     len(errs) == 0,
		Rules:     len(result.Rules),
		Canonical: result.Canonical,
		Errors:    errs,
		Warnings:  warnings,
	}

	if opts.Format == "json" {
		if res.Valid {
			if err := out.Success(res); err != nil {
				return err
			}
		} else if err := out.Error(CodeValidationFailed, "validation failed", res); err != nil {
			return err
		}
	} else {
		printValidation(cmd, res, result.FileCount)
	}

	if !res.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
	}
	return nil
}

func printValidation(cmd *cobra.Command, res ValidationResult, files int) {
	w := cmd.OutOrStdout()
	if res.Valid {
		kind := "declared"
		if res.Canonical {
			kind = "canonical"
		}
		fmt.Fprintf(w, "✓ All rules valid (%d %s rules, %d files)\n", res.Rules, kind, files)
	} else {
		fmt.Fprintf(w, "✗ Validation failed (%d errors)\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "⚠ %s: %s\n", strings.ToUpper(warn.Level), warn.Message)
	}
}
