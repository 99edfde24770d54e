// Package lifecycle wires the six canonical rules onto an engine.Machine.
//
// The resulting machine latches: READY and COMMIT_POINTER persist until an
// explicit exit gesture, and only the coast timeout can bring a silent
// entity back to IDLE on its own.
package lifecycle

import (
	"fmt"

	"github.com/roach88/latch/internal/engine"
	"github.com/roach88/latch/internal/ir"
)

// Lifecycle is the facade over one entity's machine.
// Like engine.Machine, it is not safe for concurrent use.
type Lifecycle struct {
	m   *engine.Machine
	cfg ir.Config
}

// New validates cfg, builds a machine and registers the canonical rules.
// opts are applied after the coast policy derived from cfg, so an explicit
// engine.WithCoastPolicy wins.
func New(cfg ir.Config, opts ...engine.Option) (*Lifecycle, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	opts = append([]engine.Option{engine.WithCoastPolicy(engine.CoastPolicyFromConfig(cfg))}, opts...)
	m, err := engine.New(opts...)
	if err != nil {
		return nil, err
	}
	for _, spec := range CanonicalRules(cfg) {
		rule, err := BuildRule(spec)
		if err != nil {
			return nil, err
		}
		if err := m.Register(rule); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.ID, err)
		}
	}
	return &Lifecycle{m: m, cfg: cfg}, nil
}

// ValidateConfig checks the knobs New and Configure rely on.
func ValidateConfig(cfg ir.Config) error {
	if cfg.DwellReadyMs < 0 {
		return &engine.ConfigError{Code: engine.ErrCodeInvalidDwell, Message: "dwell must not be negative", Field: "dwell_ready_ms"}
	}
	if cfg.DwellCommitMs < 0 {
		return &engine.ConfigError{Code: engine.ErrCodeInvalidDwell, Message: "dwell must not be negative", Field: "dwell_commit_ms"}
	}
	if err := engine.CoastPolicyFromConfig(cfg).Validate(); err != nil {
		return err
	}
	if !(cfg.ConfHigh >= 0 && cfg.ConfHigh <= 1) || !(cfg.ConfLow >= 0 && cfg.ConfLow <= cfg.ConfHigh) {
		return &engine.ConfigError{
			Code:    engine.ErrCodeInvalidThreshold,
			Message: fmt.Sprintf("need 0 <= conf_low <= conf_high <= 1, got %.2f/%.2f", cfg.ConfLow, cfg.ConfHigh),
			Field:   "conf_high",
		}
	}
	gestures := []struct{ field, label string }{
		{"ready_gesture", cfg.ReadyGesture},
		{"release_gesture", cfg.ReleaseGesture},
		{"commit_gesture", cfg.CommitGesture},
	}
	for _, g := range gestures {
		if g.label == "" {
			return &engine.ConfigError{Code: engine.ErrCodeInvalidCondition, Message: "gesture label must not be empty", Field: g.field}
		}
	}
	return nil
}

// Machine exposes the underlying machine.
func (l *Lifecycle) Machine() *engine.Machine {
	return l.m
}

// Config returns the configuration as last applied.
func (l *Lifecycle) Config() ir.Config {
	return l.cfg
}

// ProcessFrame advances the lifecycle by one frame.
func (l *Lifecycle) ProcessFrame(frame ir.SensorFrame) ir.Snapshot {
	return l.m.ProcessFrame(frame)
}

// Snapshot returns the current state view.
func (l *Lifecycle) Snapshot() ir.Snapshot {
	return l.m.Snapshot()
}

// RuleDwell returns one rule's accumulated dwell.
func (l *Lifecycle) RuleDwell(id string) (int64, bool) {
	return l.m.RuleDwell(id)
}

// RuleDwells returns every rule's accumulated dwell.
func (l *Lifecycle) RuleDwells() map[string]int64 {
	return l.m.RuleDwells()
}

// RegisterRule adds or replaces a rule next to the canonical six.
func (l *Lifecycle) RegisterRule(rule engine.Rule) error {
	return l.m.Register(rule)
}

// RegisterSpec registers a declarative rule with a stock evaluator.
func (l *Lifecycle) RegisterSpec(spec ir.RuleSpec) error {
	rule, err := BuildRule(spec)
	if err != nil {
		return err
	}
	return l.m.Register(rule)
}

// UnregisterRule removes a rule and its dwell state.
func (l *Lifecycle) UnregisterRule(id string) bool {
	return l.m.Unregister(id)
}

// PatchRule tunes one rule without touching its dwell.
func (l *Lifecycle) PatchRule(id string, patch engine.RulePatch) error {
	return l.m.PatchRule(id, patch)
}

// ForceIdle resets to IDLE and clears every dwell.
func (l *Lifecycle) ForceIdle(tsMs int64) ir.Snapshot {
	return l.m.ForceIdle(tsMs)
}

// ForceCoast enters the coast variant of the current state.
func (l *Lifecycle) ForceCoast(tsMs int64) ir.Snapshot {
	return l.m.ForceCoast(tsMs)
}

// RuleSpecs returns the declarative form of every registered rule.
func (l *Lifecycle) RuleSpecs() []ir.RuleSpec {
	rules := l.m.Rules()
	out := make([]ir.RuleSpec, len(rules))
	for i, r := range rules {
		out[i] = r.Spec()
	}
	return out
}

// ApplySpecs replaces the whole rule set with specs, typically compiled
// from CUE. Rules that keep their id keep their dwell and position; rules
// missing from specs are dropped. Nothing changes if any spec is invalid.
func (l *Lifecycle) ApplySpecs(specs []ir.RuleSpec) error {
	rules := make([]engine.Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := BuildRule(spec)
		if err != nil {
			return err
		}
		if err := engine.ValidateRule(rule); err != nil {
			return err
		}
		rules = append(rules, rule)
	}

	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.ID] = true
	}
	for _, r := range l.m.Rules() {
		if !keep[r.ID] {
			l.m.Unregister(r.ID)
		}
	}
	for _, r := range rules {
		if err := l.m.Register(r); err != nil {
			return fmt.Errorf("register %s: %w", r.ID, err)
		}
	}
	return nil
}

// Reload swaps in a recompiled rule set together with the config it was
// compiled under. Unlike Configure, the config's dwell and threshold knobs
// are not pushed into the rules: specs already carry their own. An empty
// specs list means the canonical rules for cfg. On error nothing changes.
func (l *Lifecycle) Reload(specs []ir.RuleSpec, cfg ir.Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if len(specs) == 0 {
		specs = CanonicalRules(cfg)
	}
	if err := l.ApplySpecs(specs); err != nil {
		return err
	}
	if err := l.m.SetCoastPolicy(engine.CoastPolicyFromConfig(cfg)); err != nil {
		return err
	}
	l.cfg = cfg
	return nil
}

// ConfigPatch carries the hot-reconfigurable knobs. Nil fields are kept.
type ConfigPatch struct {
	DwellReadyMs   *int64   `json:"dwell_ready_ms,omitempty" yaml:"dwell_ready_ms"`
	DwellCommitMs  *int64   `json:"dwell_commit_ms,omitempty" yaml:"dwell_commit_ms"`
	CoastTimeoutMs *int64   `json:"coast_timeout_ms,omitempty" yaml:"coast_timeout_ms"`
	CoastConfLow   *float64 `json:"coast_conf_low,omitempty" yaml:"coast_conf_low"`
	CoastConfHigh  *float64 `json:"coast_conf_high,omitempty" yaml:"coast_conf_high"`
	ConfHigh       *float64 `json:"conf_high,omitempty" yaml:"conf_high"`
	ConfLow        *float64 `json:"conf_low,omitempty" yaml:"conf_low"`
}

// Apply returns cfg with the patch applied.
func (p ConfigPatch) Apply(cfg ir.Config) ir.Config {
	set := func(dst *int64, src *int64) {
		if src != nil {
			*dst = *src
		}
	}
	setf := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&cfg.DwellReadyMs, p.DwellReadyMs)
	set(&cfg.DwellCommitMs, p.DwellCommitMs)
	set(&cfg.CoastTimeoutMs, p.CoastTimeoutMs)
	setf(&cfg.CoastConfLow, p.CoastConfLow)
	setf(&cfg.CoastConfHigh, p.CoastConfHigh)
	setf(&cfg.ConfHigh, p.ConfHigh)
	setf(&cfg.ConfLow, p.ConfLow)
	return cfg
}

// canonicalIDs lists the canonical rules in registration order.
var canonicalIDs = []string{
	RuleIdleToReady,
	RuleIdleReinforce,
	RuleReadyToIdle,
	RuleReadyToCommit,
	RuleCommitToReady,
	RuleCommitToIdle,
}

// Configure hot-patches dwell, threshold and coast knobs across the
// affected rules. DwellReadyMs tunes idle_to_ready; DwellCommitMs tunes
// ready_to_commit and both COMMIT exits. Dwell accumulators and the
// current state are never reset, canonical rules that were unregistered
// are skipped, and on error nothing changes.
func (l *Lifecycle) Configure(patch ConfigPatch) error {
	next := patch.Apply(l.cfg)
	if err := ValidateConfig(next); err != nil {
		return err
	}

	patches := make(map[string]engine.RulePatch, len(canonicalIDs))
	for _, id := range canonicalIDs {
		rp := engine.RulePatch{ConfHigh: patch.ConfHigh, ConfLow: patch.ConfLow}
		switch id {
		case RuleIdleToReady:
			rp.DwellMs = patch.DwellReadyMs
		case RuleReadyToCommit, RuleCommitToReady, RuleCommitToIdle:
			rp.DwellMs = patch.DwellCommitMs
		}
		r, ok := l.m.Rule(id)
		if !ok {
			continue
		}
		if err := engine.ValidateRule(rp.Apply(r)); err != nil {
			return err
		}
		patches[id] = rp
	}

	for _, id := range canonicalIDs {
		if rp, ok := patches[id]; ok {
			if err := l.m.PatchRule(id, rp); err != nil {
				return fmt.Errorf("patch %s: %w", id, err)
			}
		}
	}
	if err := l.m.SetCoastPolicy(engine.CoastPolicyFromConfig(next)); err != nil {
		return err
	}
	l.cfg = next
	return nil
}

// PalmDwell reports the advance-side dwell bucket for the current state:
// idle_to_ready in IDLE, ready_to_commit in READY, commit_to_ready in
// COMMIT_POINTER. Coast states report their active state's bucket.
//
// Deprecated: the rule behind the number changes with the state. Use
// RuleDwell with an explicit rule id.
func (l *Lifecycle) PalmDwell() int64 {
	return l.bucket(0)
}

// FistDwell reports the release-side dwell bucket for the current state:
// idle_reinforce, ready_to_idle or commit_to_idle.
//
// Deprecated: use RuleDwell with an explicit rule id.
func (l *Lifecycle) FistDwell() int64 {
	return l.bucket(1)
}

func (l *Lifecycle) bucket(side int) int64 {
	pair, ok := dwellBuckets[l.m.State().ActiveOf()]
	if !ok {
		return 0
	}
	d, _ := l.m.RuleDwell(pair[side])
	return d
}
