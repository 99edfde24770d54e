package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/latch/internal/pipeline"
	"github.com/roach88/latch/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Sessions []string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute recorded sessions and verify determinism",
		Long: `Rebuild each recorded session from its stored rules and config,
re-run every recorded input and compare the transitions with the
recorded ones. Any difference fails the command.`,
		Example: `  latch replay --db trace.db
  latch replay --db trace.db --session 0192f3c0-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "trace database (default from settings)")
	cmd.Flags().StringSliceVar(&opts.Sessions, "session", nil, "session id to replay (repeatable, default: all)")

	return cmd
}

// ReplayReport is the JSON payload of the replay command.
type ReplayReport struct {
	Sessions []pipeline.ReplayResult `json:"sessions"`
	Matched  int                     `json:"matched"`
	Diverged int                     `json:"diverged"`
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	out := opts.formatter(cmd)
	dbPath := firstNonEmpty(opts.Database, opts.Settings.Database, DefaultDatabase)

	if _, err := os.Stat(dbPath); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	ids := opts.Sessions
	if len(ids) == 0 {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
	}
	out.VerboseLog("Replaying %d sessions from %s", len(ids), dbPath)

	results := make([]pipeline.ReplayResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		g.Go(func() error {
			res, err := pipeline.Replay(gctx, st, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out.Fail(CodeReplayFailed, ExitCommandError, "replay failed", err)
	}

	report := ReplayReport{Sessions: results}
	for _, res := range results {
		if res.Match {
			report.Matched++
		} else {
			report.Diverged++
		}
	}

	if opts.Format == "json" {
		if report.Diverged == 0 {
			if err := out.Success(report); err != nil {
				return err
			}
		} else if err := out.Error(CodeNondeterministic, "replay diverged", report); err != nil {
			return err
		}
	} else {
		printReplay(cmd, opts, report)
	}

	if report.Diverged > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d session(s) diverged", report.Diverged))
	}
	return nil
}

func printReplay(cmd *cobra.Command, opts *ReplayOptions, report ReplayReport) {
	w := cmd.OutOrStdout()
	for _, res := range report.Sessions {
		if res.Match {
			fmt.Fprintf(w, "✓ %s (%s, %d inputs, %d transitions)\n",
				res.SessionID, res.Entity, res.Inputs, len(res.Recorded))
		} else {
			fmt.Fprintf(w, "✗ %s (%s) diverged at transition %d\n", res.SessionID, res.Entity, res.Divergence)
			if opts.Verbose && res.Diff != "" {
				fmt.Fprintln(w, res.Diff)
			}
		}
		if res.VersionMismatch() {
			fmt.Fprintf(w, "  recorded by engine %s\n", res.EngineVersion)
		}
	}
	fmt.Fprintf(w, "\nReplay Summary: %d matched, %d diverged, %d total\n",
		report.Matched, report.Diverged, len(report.Sessions))
}
