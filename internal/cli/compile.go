package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/latch/internal/compiler"
	"github.com/roach88/latch/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules-dir>",
		Short: "Compile a rules directory to canonical JSON",
		Long: `Compile and validate a rules directory, then write the rule set as
canonical JSON together with its ruleset hash. The hash is the one
recorded with every session the rule set drives.`,
		Example: `  latch compile ./rules
  latch compile ./rules -o ruleset.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, dir string) error {
	out := opts.formatter(cmd)
	out.VerboseLog("Compiling rules in %s", dir)

	result, err := compiler.Load(dir)
	if err != nil {
		return out.Fail(CodeCompileFailed, ExitFailure, "compilation failed", err)
	}

	data, hash, err := CompileRuleset(result.Rules, result.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode rule set", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		if opts.Format == "json" {
			return out.Success(map[string]any{
				"output":       opts.Output,
				"rules":        len(result.Rules),
				"ruleset_hash": hash,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compiled %d rules to %s (%s)\n", len(result.Rules), opts.Output, hash)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// CompileRuleset renders rules and cfg as canonical JSON and returns the
// ruleset hash alongside.
func CompileRuleset(rules []ir.RuleSpec, cfg ir.Config) ([]byte, string, error) {
	hash, err := ir.RulesetHash(rules, cfg)
	if err != nil {
		return nil, "", err
	}
	specs := make([]any, 0, len(rules))
	for _, r := range rules {
		specs = append(specs, r.Canonical())
	}
	data, err := ir.MarshalCanonical(map[string]any{
		"ir_version":   ir.IRVersion,
		"lifecycle":    cfg.Canonical(),
		"rules":        specs,
		"ruleset_hash": hash,
	})
	if err != nil {
		return nil, "", err
	}
	return data, hash, nil
}
