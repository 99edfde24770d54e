package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/roach88/latch/internal/engine"
	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
	"github.com/roach88/latch/internal/store"
)

// DefaultEntity names the entity of events that carry none.
const DefaultEntity = "default"

// ChangeFunc is called for every transition, after it is recorded.
type ChangeFunc func(entity string, t ir.Transition)

// Stats counts what the pipeline has processed.
type Stats struct {
	Events      int64 `json:"events"`
	Frames      int64 `json:"frames"`
	Transitions int64 `json:"transitions"`
	Errors      int64 `json:"errors"`
	Entities    int   `json:"entities"`
	Pending     int   `json:"pending"`
}

// Pipeline is the single-writer loop over every tracked entity.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Process(), Snapshot(), Entities(): serialized by an internal mutex
//
// Each entity gets its own Lifecycle and session the first time an event
// addresses it. Machines are never shared between goroutines.
type Pipeline struct {
	store    *store.Store
	ids      engine.SessionIDGenerator
	logger   *slog.Logger
	onChange ChangeFunc
	queue    *eventQueue

	mu       sync.Mutex
	proto    *lifecycle.Lifecycle // template for new entities
	entities map[string]*entity
	stats    Stats
}

type entity struct {
	name    string
	session string
	lc      *lifecycle.Lifecycle
	seq     int64
	pending []ir.Transition
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	store    *store.Store
	ids      engine.SessionIDGenerator
	logger   *slog.Logger
	onChange ChangeFunc
	cfg      ir.Config
	rules    []ir.RuleSpec
}

// WithStore records every session, input and transition to st.
func WithStore(st *store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithSessionIDs sets the session id generator. Defaults to UUIDv7.
func WithSessionIDs(gen engine.SessionIDGenerator) Option {
	return func(o *options) {
		if gen != nil {
			o.ids = gen
		}
	}
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnChange registers the transition hook.
func WithOnChange(fn ChangeFunc) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithConfig sets the lifecycle config for new entities.
func WithConfig(cfg ir.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithRules replaces the canonical rules for new entities.
func WithRules(specs []ir.RuleSpec) Option {
	return func(o *options) {
		o.rules = slices.Clone(specs)
	}
}

// New validates the rule set and config and returns an idle pipeline.
func New(opts ...Option) (*Pipeline, error) {
	o := options{
		ids:    engine.UUIDv7Generator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:    ir.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	proto, err := newLifecycle(o.cfg, o.rules)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Pipeline{
		store:    o.store,
		ids:      o.ids,
		logger:   o.logger,
		onChange: o.onChange,
		queue:    newEventQueue(),
		proto:    proto,
		entities: make(map[string]*entity),
	}, nil
}

// newLifecycle builds a lifecycle running rules under cfg. Empty rules
// mean the canonical six.
func newLifecycle(cfg ir.Config, rules []ir.RuleSpec, opts ...engine.Option) (*lifecycle.Lifecycle, error) {
	lc, err := lifecycle.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		if err := lc.ApplySpecs(rules); err != nil {
			return nil, err
		}
	}
	return lc, nil
}

// Enqueue submits an event for processing by the Run loop.
// Returns false once the pipeline is stopped.
func (p *Pipeline) Enqueue(ev Event) bool {
	return p.queue.Enqueue(ev)
}

// Run processes events until ctx is cancelled or Stop is called and the
// queue is drained. Errors on a single event are logged and the loop
// continues: one bad frame must not stall the other entities.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline starting")

	for {
		if ev, ok := p.queue.TryDequeue(); ok {
			if err := p.Process(ctx, ev); err != nil {
				p.logger.Error("event processing failed",
					"type", ev.Type.String(),
					"entity", ev.Entity,
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping: context cancelled")
			p.queue.Close()
			return ctx.Err()
		case <-p.queue.Wait():
			if p.queue.Drained() {
				p.logger.Info("pipeline stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the remaining events are done.
func (p *Pipeline) Stop() {
	p.queue.Close()
}

// Process handles one event synchronously.
func (p *Pipeline) Process(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Events++
	err := p.process(ctx, ev)
	if err != nil {
		p.stats.Errors++
	}
	return err
}

func (p *Pipeline) process(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventFrame:
		e, err := p.entity(ctx, entityName(ev))
		if err != nil {
			return err
		}
		frame := ev.Frame
		frame.Entity = e.name
		frame.Confidence = ir.FromBasisPoints(ir.BasisPoints(frame.Confidence))
		p.stats.Frames++
		return p.step(ctx, e, store.Input{Kind: store.InputFrame, Frame: frame})

	case EventForceIdle, EventForceCoast:
		e, err := p.entity(ctx, entityName(ev))
		if err != nil {
			return err
		}
		kind := store.InputForceIdle
		if ev.Type == EventForceCoast {
			kind = store.InputForceCoast
		}
		return p.step(ctx, e, store.Input{Kind: kind, Frame: ir.SensorFrame{Entity: e.name, TimestampMs: ev.TimestampMs}})

	case EventConfigure:
		payload, err := json.Marshal(ev.Patch)
		if err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		in := store.Input{Kind: store.InputConfigure, Payload: string(payload)}
		if ev.Entity != "" {
			e, err := p.entity(ctx, ev.Entity)
			if err != nil {
				return err
			}
			return p.step(ctx, e, in)
		}
		if err := p.proto.Configure(ev.Patch); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		return p.broadcast(ctx, in)

	case EventReload:
		if err := p.proto.Reload(ev.Rules, ev.Config); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		payload, err := json.Marshal(rulesPayload{Rules: p.proto.RuleSpecs(), Config: p.proto.Config()})
		if err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		p.logger.Info("rules reloaded", "rules", len(p.proto.RuleSpecs()), "entities", len(p.entities))
		return p.broadcast(ctx, store.Input{Kind: store.InputRules, Payload: string(payload)})

	case EventDrop:
		name := entityName(ev)
		if e, ok := p.entities[name]; ok {
			delete(p.entities, name)
			p.logger.Info("entity dropped", "entity", name, "session", e.session)
		}
		return nil

	default:
		return fmt.Errorf("unknown event type %d", ev.Type)
	}
}

// broadcast applies in to every live entity in name order.
func (p *Pipeline) broadcast(ctx context.Context, in store.Input) error {
	var errs []error
	for _, name := range p.sortedEntities() {
		e := p.entities[name]
		if err := p.step(ctx, e, in); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// entity returns the named entity, creating it and its session on first use.
func (p *Pipeline) entity(ctx context.Context, name string) (*entity, error) {
	if e, ok := p.entities[name]; ok {
		return e, nil
	}

	e := &entity{name: name, session: p.ids.Generate()}
	lc, err := newLifecycle(p.proto.Config(), p.proto.RuleSpecs(),
		engine.WithSessionID(e.session),
		engine.WithLogger(p.logger.With("entity", name)),
		engine.WithObserver(func(t ir.Transition) {
			e.pending = append(e.pending, t)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", name, err)
	}
	e.lc = lc

	if p.store != nil {
		sess, err := store.NewSession(e.session, name, lc.RuleSpecs(), lc.Config())
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		if err := p.store.WriteSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
	}

	p.entities[name] = e
	p.logger.Info("entity created", "entity", name, "session", e.session)
	return e, nil
}

// step applies one input to an entity, records it with the transitions
// it caused and notifies the hook. Inputs the lifecycle rejects change
// nothing and are not recorded.
func (p *Pipeline) step(ctx context.Context, e *entity, in store.Input) error {
	e.pending = nil
	if err := applyInput(e.lc, in); err != nil {
		return err
	}
	transitions := e.pending
	e.pending = nil

	e.seq++
	in.SessionID = e.session
	in.Seq = e.seq
	p.stats.Transitions += int64(len(transitions))

	if p.store != nil {
		if err := p.store.RecordStep(ctx, in, transitions); err != nil {
			return err
		}
	}

	if p.onChange != nil {
		for _, t := range transitions {
			p.onChange(e.name, t)
		}
	}
	return nil
}

// rulesPayload is the recorded argument of a reload.
type rulesPayload struct {
	Rules  []ir.RuleSpec `json:"rules"`
	Config ir.Config     `json:"config"`
}

// applyInput feeds one input to lc. Live processing and replay share it,
// so a recorded session re-executes exactly as it ran.
func applyInput(lc *lifecycle.Lifecycle, in store.Input) error {
	switch in.Kind {
	case store.InputFrame:
		lc.ProcessFrame(in.Frame)
	case store.InputForceIdle:
		lc.ForceIdle(in.Frame.TimestampMs)
	case store.InputForceCoast:
		lc.ForceCoast(in.Frame.TimestampMs)
	case store.InputConfigure:
		var patch lifecycle.ConfigPatch
		if in.Payload != "" {
			if err := json.Unmarshal([]byte(in.Payload), &patch); err != nil {
				return fmt.Errorf("configure payload: %w", err)
			}
		}
		return lc.Configure(patch)
	case store.InputRules:
		var payload rulesPayload
		if err := json.Unmarshal([]byte(in.Payload), &payload); err != nil {
			return fmt.Errorf("rules payload: %w", err)
		}
		return lc.Reload(payload.Rules, payload.Config)
	default:
		return fmt.Errorf("unknown input kind %q", in.Kind)
	}
	return nil
}

func entityName(ev Event) string {
	switch {
	case ev.Entity != "":
		return ev.Entity
	case ev.Frame.Entity != "":
		return ev.Frame.Entity
	default:
		return DefaultEntity
	}
}

func (p *Pipeline) sortedEntities() []string {
	names := make([]string, 0, len(p.entities))
	for name := range p.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entities returns the live entity names in sorted order.
func (p *Pipeline) Entities() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedEntities()
}

// Snapshot returns the current state of one entity.
func (p *Pipeline) Snapshot(name string) (ir.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entities[name]
	if !ok {
		return ir.Snapshot{}, false
	}
	return e.lc.Snapshot(), true
}

// SessionID returns the session id of one entity.
func (p *Pipeline) SessionID(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entities[name]
	if !ok {
		return "", false
	}
	return e.session, true
}

// RuleDwells returns one entity's accumulated dwell per rule.
func (p *Pipeline) RuleDwells(name string) (map[string]int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entities[name]
	if !ok {
		return nil, false
	}
	return e.lc.RuleDwells(), true
}

// Stats returns the processing counters and the number of queued events
// the Run loop has not reached yet.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Entities = len(p.entities)
	s.Pending = p.queue.Len()
	return s
}

// Rules returns the rule set and config new entities start from.
func (p *Pipeline) Rules() ([]ir.RuleSpec, ir.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proto.RuleSpecs(), p.proto.Config()
}
