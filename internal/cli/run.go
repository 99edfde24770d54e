package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/latch/internal/compiler"
	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
	"github.com/roach88/latch/internal/pipeline"
	"github.com/roach88/latch/internal/store"
	"github.com/roach88/latch/internal/watch"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Rules    string
	Watch    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [frames.jsonl|-]",
		Short: "Drive the engine from a stream of JSON lines",
		Long: `Read one JSON object per line and feed it to the per-entity state
machines. Every input and transition is recorded to the database so the
session can be replayed later.

A line is a sensor frame:
  {"entity":"left","label":"open_palm","confidence":0.9,"t":100}

or a control input for an entity:
  {"entity":"left","force":"idle","t":250}
  {"entity":"left","force":"coast","t":250}
  {"entity":"left","drop":true}
  {"configure":{"dwell_ready_ms":60}}

A configure line without an entity applies to every entity. Lines that
fail to parse are logged and skipped. Transitions are printed as they
happen.`,
		Example: `  latch run frames.jsonl --db trace.db
  sensor | latch run --rules ./rules --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return runRun(cmd, opts, input)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "trace database (default from settings)")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "rules directory (default: canonical rules)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload the rules directory when it changes")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, input string) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	dbPath := firstNonEmpty(opts.Database, opts.Settings.Database, DefaultDatabase)
	rulesDir := firstNonEmpty(opts.Rules, opts.Settings.Rules)
	if opts.Watch && rulesDir == "" {
		return NewExitError(ExitCommandError, "--watch requires a rules directory")
	}

	rules, cfg, err := runRules(rulesDir, opts.Settings, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	src, err := openInput(cmd, input)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer src.Close()

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	p, err := pipeline.New(
		pipeline.WithStore(st),
		pipeline.WithLogger(logger),
		pipeline.WithConfig(cfg),
		pipeline.WithRules(rules),
		pipeline.WithOnChange(transitionPrinter(cmd.OutOrStdout(), opts.Format)),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start pipeline", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Watch {
		w, err := watch.New(rulesDir, func(res *compiler.LoadResult) {
			p.Enqueue(pipeline.ReloadEvent(res.Rules, res.Config))
		}, watch.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch rules", err)
		}
		if err := w.Start(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch rules", err)
		}
		defer w.Stop()
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer p.Stop()
		feed(src.r, p, logger)
	}()

	runErr := p.Run(ctx)
	if runErr != nil {
		src.Close()
	}
	if runErr == nil || src.interruptible() {
		<-readDone
	}

	stats := p.Stats()
	logger.Info("run finished",
		"db", dbPath,
		"events", stats.Events,
		"frames", stats.Frames,
		"transitions", stats.Transitions,
		"errors", stats.Errors,
		"entities", stats.Entities,
		"pending", stats.Pending,
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "pipeline failed", runErr)
	}
	return nil
}

// runRules picks the rule set for a run: a compiled rules directory when
// one is given, otherwise the canonical rules under the settings config.
func runRules(dir string, settings Settings, logger *slog.Logger) ([]ir.RuleSpec, ir.Config, error) {
	if dir == "" {
		return nil, settings.Lifecycle, nil
	}
	result, err := compiler.Load(dir)
	if err != nil {
		return nil, ir.Config{}, err
	}
	for _, warn := range compiler.AnalyzeCycles(result.Rules) {
		logger.Warn("rule cycle", "message", warn.Message)
	}
	return result.Rules, result.Config, nil
}

// source is the input of a run. Closing it interrupts a pending read,
// except on the process's own stdin: a blocked read there cannot be
// cancelled, so a signalled run returns without joining its reader and
// the read ends with the process.
type source struct {
	r     io.Reader
	close func()
}

func openInput(cmd *cobra.Command, input string) (*source, error) {
	if input == "-" {
		in := cmd.InOrStdin()
		c, ok := in.(io.Closer)
		if !ok || in == os.Stdin {
			return &source{r: in}, nil
		}
		return &source{r: in, close: sync.OnceFunc(func() { c.Close() })}, nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, err
	}
	return &source{r: f, close: sync.OnceFunc(func() { f.Close() })}, nil
}

func (s *source) interruptible() bool { return s.close != nil }

func (s *source) Close() {
	if s.close != nil {
		s.close()
	}
}

// feed enqueues every parseable line of r until EOF, a read error or a
// closed pipeline.
func feed(r io.Reader, p *pipeline.Pipeline, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		ev, err := ParseInputLine(data)
		if err != nil {
			logger.Warn("skipping input line", "line", line, "error", err)
			continue
		}
		if !p.Enqueue(ev) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("reading input", "error", err)
	}
}

// inputLine is one JSON line of run input.
type inputLine struct {
	ir.SensorFrame
	Force     string                 `json:"force,omitempty"`
	Configure *lifecycle.ConfigPatch `json:"configure,omitempty"`
	Drop      bool                   `json:"drop,omitempty"`
}

// ParseInputLine decodes one line of run input into a pipeline event.
func ParseInputLine(data []byte) (pipeline.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var line inputLine
	if err := dec.Decode(&line); err != nil {
		return pipeline.Event{}, fmt.Errorf("decode: %w", err)
	}

	controls := 0
	for _, set := range []bool{line.Force != "", line.Configure != nil, line.Drop} {
		if set {
			controls++
		}
	}
	if controls > 1 {
		return pipeline.Event{}, errors.New("only one of force, configure or drop may be set")
	}

	switch {
	case line.Configure != nil:
		return pipeline.ConfigureEvent(line.Entity, *line.Configure), nil
	case line.Drop:
		if line.Entity == "" {
			return pipeline.Event{}, errors.New("drop requires an entity")
		}
		return pipeline.DropEvent(line.Entity), nil
	case line.Force == "idle":
		return pipeline.ForceIdleEvent(line.Entity, line.TimestampMs), nil
	case line.Force == "coast":
		return pipeline.ForceCoastEvent(line.Entity, line.TimestampMs), nil
	case line.Force != "":
		return pipeline.Event{}, fmt.Errorf("unknown force %q: must be idle or coast", line.Force)
	}

	if line.Label == "" {
		return pipeline.Event{}, errors.New("frame requires a label")
	}
	return pipeline.FrameEvent(line.SensorFrame), nil
}

// transitionRecord is the JSON line printed for each transition.
type transitionRecord struct {
	Entity     string        `json:"entity"`
	Transition ir.Transition `json:"transition"`
}

func transitionPrinter(w io.Writer, format string) pipeline.ChangeFunc {
	if format == "json" {
		enc := json.NewEncoder(w)
		return func(entity string, t ir.Transition) {
			_ = enc.Encode(transitionRecord{Entity: entity, Transition: t})
		}
	}
	return func(entity string, t ir.Transition) {
		fmt.Fprintf(w, "%s %s\n", entity, formatTransition(t))
	}
}

// formatTransition renders t on one line.
func formatTransition(t ir.Transition) string {
	s := fmt.Sprintf("[%d] t=%d %s -> %s (%s", t.Seq, t.TimestampMs, t.From, t.To, t.Cause)
	if t.RuleID != "" {
		s += " " + t.RuleID
	}
	return s + ")"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
