package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/queryir"
	"github.com/roach88/latch/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Rule     string
	Causes   []string
	To       string
	Limit    int
	Summary  bool
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded sessions and transitions",
		Long: `List the sessions in a trace database, or print the transitions of
one session filtered by rule, cause or target state.`,
		Example: `  latch trace --db trace.db
  latch trace --db trace.db --session <id>
  latch trace --db trace.db --session <id> --cause coast_enter,coast_timeout
  latch trace --db trace.db --session <id> --summary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "trace database (default from settings)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: list sessions)")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only transitions fired by this rule")
	cmd.Flags().StringSliceVar(&opts.Causes, "cause", nil, "only transitions with these causes")
	cmd.Flags().StringVar(&opts.To, "to", "", "only transitions into this state")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum transitions to print (0 = all)")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "print the session summary instead of transitions")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions) error {
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
	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		return printSessions(cmd, opts, sessions)
	}

	if opts.Summary {
		summary, err := st.SessionSummary(ctx, opts.Session)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to summarize session", err)
		}
		if opts.Format == "json" {
			return out.Success(summary)
		}
		printSummary(cmd, summary)
		return nil
	}

	query, err := opts.query()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}
	transitions, err := st.QueryTransitions(ctx, query)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query transitions", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"session_id":  opts.Session,
			"transitions": transitions,
		})
	}
	w := cmd.OutOrStdout()
	if len(transitions) == 0 {
		fmt.Fprintln(w, "No transitions.")
		return nil
	}
	for _, t := range transitions {
		fmt.Fprintln(w, formatTransition(t))
	}
	return nil
}

// query builds the transition query for the selected filters.
func (o *TraceOptions) query() (queryir.Select, error) {
	preds := []queryir.Predicate{
		queryir.Equals{Field: "session_id", Value: ir.IRString(o.Session)},
	}
	if o.Rule != "" {
		preds = append(preds, queryir.Equals{Field: "rule_id", Value: ir.IRString(o.Rule)})
	}
	if len(o.Causes) > 0 {
		values := make([]ir.IRValue, 0, len(o.Causes))
		for _, c := range o.Causes {
			values = append(values, ir.IRString(strings.TrimSpace(c)))
		}
		preds = append(preds, queryir.In{Field: "cause", Values: values})
	}
	if o.To != "" {
		to, err := ir.ParseStateID(o.To)
		if err != nil {
			return queryir.Select{}, err
		}
		preds = append(preds, queryir.Equals{Field: "to_state", Value: ir.IRString(to)})
	}
	return queryir.Select{
		From:   queryir.TableTransitions,
		Filter: queryir.Where(preds...),
		Limit:  o.Limit,
	}, nil
}

func printSessions(cmd *cobra.Command, opts *TraceOptions, sessions []store.Session) error {
	if opts.Format == "json" {
		type row struct {
			ID            string `json:"id"`
			Entity        string `json:"entity"`
			RulesetHash   string `json:"ruleset_hash"`
			EngineVersion string `json:"engine_version"`
		}
		rows := make([]row, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, row{s.ID, s.Entity, s.RulesetHash, s.EngineVersion})
		}
		return opts.formatter(cmd).Success(rows)
	}

	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-8s  %s\n", s.ID, s.Entity, s.RulesetHash)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s store.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session:     %s\n", s.SessionID)
	fmt.Fprintf(w, "Entity:      %s\n", s.Entity)
	fmt.Fprintf(w, "Inputs:      %d (%d frames)\n", s.InputCount, s.FrameCount)
	fmt.Fprintf(w, "Transitions: %d\n", s.TransitionCount)
	fmt.Fprintf(w, "Final state: %s\n", s.FinalState)

	causes := make([]string, 0, len(s.Causes))
	for c := range s.Causes {
		causes = append(causes, string(c))
	}
	slices.Sort(causes)
	for _, c := range causes {
		fmt.Fprintf(w, "  cause %-14s %d\n", c, s.Causes[ir.TransitionCause(c)])
	}

	rules := make([]string, 0, len(s.RuleFirings))
	for r := range s.RuleFirings {
		rules = append(rules, r)
	}
	slices.Sort(rules)
	for _, r := range rules {
		fmt.Fprintf(w, "  rule  %-14s %d\n", r, s.RuleFirings[r])
	}
}
