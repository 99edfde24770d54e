package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/latch/internal/compiler"
	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/pipeline"
	"github.com/roach88/latch/internal/store"
	"github.com/roach88/latch/internal/testutil"
)

// Harness drives one scenario through a real pipeline backed by an
// in-memory store.
type Harness struct {
	pipe   *pipeline.Pipeline
	store  *store.Store
	clock  *testutil.FrameClock
	entity string
	logger *slog.Logger
	result *Result
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes pipeline and engine logs to l. The default discards them.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with sequential
// session ids and a frame clock starting at 0, so two runs of the same
// scenario record byte-identical sessions. After the last step the
// recorded session is replayed and any divergence fails the result.
//
// Run returns an error when the scenario cannot be executed at all
// (bad rules, a rejected configure or patch); assertion failures are
// reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	rules, cfg, err := scenarioRules(scenario)
	if err != nil {
		return nil, err
	}

	entity := scenario.Entity
	if entity == "" {
		entity = pipeline.DefaultEntity
	}

	p, err := pipeline.New(
		pipeline.WithStore(st),
		pipeline.WithSessionIDs(testutil.NewSequentialSessionIDs("scenario-"+scenario.Name)),
		pipeline.WithLogger(o.logger),
		pipeline.WithConfig(cfg),
		pipeline.WithRules(rules),
	)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if scenario.Config != nil {
		if err := p.Process(ctx, pipeline.ConfigureEvent("", *scenario.Config)); err != nil {
			return nil, fmt.Errorf("scenario config: %w", err)
		}
	}

	h := &Harness{
		pipe:   p,
		store:  st,
		clock:  testutil.NewFrameClock(0),
		entity: entity,
		logger: o.logger,
		result: NewResult(),
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if err := h.collect(ctx); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	if err := h.verifyReplay(ctx); err != nil {
		return nil, err
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"session_id", h.result.SessionID,
		"transitions", len(h.result.Transitions),
		"pass", h.result.Pass,
	)
	return h.result, nil
}

// scenarioRules resolves the starting rule set. Empty rules mean the
// canonical lifecycle.
func scenarioRules(scenario *Scenario) ([]ir.RuleSpec, ir.Config, error) {
	if scenario.Rules == "" {
		return nil, ir.DefaultConfig(), nil
	}
	loaded, err := compiler.Load(scenario.Rules)
	if err != nil {
		return nil, ir.Config{}, fmt.Errorf("rules %s: %w", scenario.Rules, err)
	}
	return loaded.Rules, loaded.Config, nil
}

func (h *Harness) runStep(ctx context.Context, step Step) error {
	if step.Label != "" {
		return h.runFrames(ctx, step)
	}

	ts := h.clock.Now()
	if step.At != nil {
		ts = *step.At
	}

	var ev pipeline.Event
	switch {
	case step.ForceIdle:
		ev = pipeline.ForceIdleEvent(h.entity, ts)
	case step.ForceCoast:
		ev = pipeline.ForceCoastEvent(h.entity, ts)
	case step.Configure != nil:
		ev = pipeline.ConfigureEvent("", *step.Configure)
	case step.Patch != nil:
		patched, err := h.patchRules(*step.Patch)
		if err != nil {
			return err
		}
		ev = patched
	}

	if err := h.pipe.Process(ctx, ev); err != nil {
		return err
	}
	h.sample(ts)
	return nil
}

func (h *Harness) runFrames(ctx context.Context, step Step) error {
	conf := DefaultConfidence
	if step.Confidence != nil {
		conf = *step.Confidence
	}
	every := step.Every
	if every == 0 {
		every = DefaultEvery
	}
	count := step.Count
	if count == 0 {
		count = DefaultCount
	}

	var extras ir.IRObject
	if step.Extras != nil {
		v, err := ir.ToIRValue(step.Extras)
		if err != nil {
			return fmt.Errorf("extras: %w", err)
		}
		extras = v.(ir.IRObject)
	}

	if step.At != nil {
		h.clock.Set(*step.At)
	}
	for _, ts := range h.clock.Ticks(count, every) {
		frame := ir.SensorFrame{
			Entity:      h.entity,
			Label:       step.Label,
			Confidence:  conf,
			TimestampMs: ts,
			Extras:      extras,
		}
		if err := h.pipe.Process(ctx, pipeline.FrameEvent(frame)); err != nil {
			return err
		}
		h.sample(ts)
	}
	return nil
}

// patchRules builds a reload of the current rule set with one rule retuned.
func (h *Harness) patchRules(patch RulePatch) (pipeline.Event, error) {
	rules, cfg := h.pipe.Rules()
	i := slices.IndexFunc(rules, func(r ir.RuleSpec) bool { return r.ID == patch.Rule })
	if i < 0 {
		return pipeline.Event{}, fmt.Errorf("patch: unknown rule %q", patch.Rule)
	}
	if patch.DwellMs != nil {
		rules[i].DwellMs = *patch.DwellMs
	}
	if patch.ConfHigh != nil {
		rules[i].ConfHigh = *patch.ConfHigh
	}
	if patch.ConfLow != nil {
		rules[i].ConfLow = *patch.ConfLow
	}
	if patch.Priority != nil {
		rules[i].Priority = *patch.Priority
	}
	return pipeline.ReloadEvent(rules, cfg), nil
}

func (h *Harness) sample(ts int64) {
	state := ir.Baseline
	if snap, ok := h.pipe.Snapshot(h.entity); ok {
		state = snap.State
	}
	h.result.Timeline = append(h.result.Timeline, Sample{TimestampMs: ts, State: state})
}

// collect reads the recorded session back into the result.
func (h *Harness) collect(ctx context.Context) error {
	sessionID, ok := h.pipe.SessionID(h.entity)
	if !ok {
		return fmt.Errorf("entity %q never received an input", h.entity)
	}
	transitions, err := h.store.ReadTransitions(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read transitions: %w", err)
	}
	snap, _ := h.pipe.Snapshot(h.entity)
	dwells, _ := h.pipe.RuleDwells(h.entity)

	h.result.Entity = h.entity
	h.result.SessionID = sessionID
	h.result.FinalState = snap.State
	h.result.Transitions = append(h.result.Transitions, transitions...)
	h.result.Dwells = dwells
	return nil
}

func (h *Harness) verifyReplay(ctx context.Context) error {
	replay, err := pipeline.Replay(ctx, h.store, h.result.SessionID)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !replay.Match {
		h.result.AddError(fmt.Sprintf("replay diverged at transition %d:\n%s", replay.Divergence, replay.Diff))
	}
	return nil
}
