package engine

import (
	"math"
	"slices"

	"github.com/roach88/latch/internal/ir"
)

// Evaluator computes the confidence of one condition from one frame.
//
// Evaluate is called at most once per rule per frame, in registration order.
// Implementations must be deterministic for replays to match.
type Evaluator interface {
	ID() string
	Evaluate(frame ir.SensorFrame) float64
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc struct {
	Name string
	Fn   func(frame ir.SensorFrame) float64
}

// ID returns the evaluator name.
func (f EvaluatorFunc) ID() string { return f.Name }

// Evaluate calls Fn. A nil Fn yields 0.
func (f EvaluatorFunc) Evaluate(frame ir.SensorFrame) float64 {
	if f.Fn == nil {
		return 0
	}
	return f.Fn(frame)
}

// Rule is a transition rule registered on a Machine.
//
// A rule is "hot" on a frame when its evaluator returns a confidence
// at or above ConfHigh. It fires once it has been hot for DwellMs of
// accumulated frame time. ConfLow is kept for callers that build their
// own release thresholds; the dwell algorithm only reads ConfHigh.
type Rule struct {
	ID        string
	From      ir.StateID
	To        ir.StateID
	Evaluator Evaluator
	ConfHigh  float64
	ConfLow   float64
	DwellMs   int64
	Priority  int
	Inhibits  []string

	// Condition is the declarative form of Evaluator, when known.
	// The machine never reads it; it travels with the rule for tracing.
	Condition ir.ConditionSpec
}

// Spec returns the declarative form of the rule.
func (r Rule) Spec() ir.RuleSpec {
	return ir.RuleSpec{
		ID:        r.ID,
		From:      r.From,
		To:        r.To,
		Condition: r.Condition,
		ConfHigh:  r.ConfHigh,
		ConfLow:   r.ConfLow,
		DwellMs:   r.DwellMs,
		Priority:  r.Priority,
		Inhibits:  slices.Clone(r.Inhibits),
	}
}

// RulePatch changes the tunable fields of a registered rule.
// Nil fields are left untouched. Dwell accumulators are never reset.
type RulePatch struct {
	DwellMs  *int64
	ConfHigh *float64
	ConfLow  *float64
	Priority *int
}

// Apply returns a copy of r with the patch applied.
func (p RulePatch) Apply(r Rule) Rule {
	if p.DwellMs != nil {
		r.DwellMs = *p.DwellMs
	}
	if p.ConfHigh != nil {
		r.ConfHigh = *p.ConfHigh
	}
	if p.ConfLow != nil {
		r.ConfLow = *p.ConfLow
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	return r
}

// ValidateRule checks a rule the way Register does, without registering it.
func ValidateRule(r Rule) error {
	if r.ID == "" {
		return &ConfigError{
			Code:    ErrCodeEmptyRuleID,
			Message: "rule id must not be empty",
		}
	}
	if !r.From.Valid() {
		return &ConfigError{
			Code:    ErrCodeUnknownState,
			Message: "unknown from state " + string(r.From),
			RuleID:  r.ID,
			Field:   "from",
		}
	}
	if !r.To.Valid() {
		return &ConfigError{
			Code:    ErrCodeUnknownState,
			Message: "unknown to state " + string(r.To),
			RuleID:  r.ID,
			Field:   "to",
		}
	}
	if r.Evaluator == nil {
		return &ConfigError{
			Code:    ErrCodeNilEvaluator,
			Message: "rule has no evaluator",
			RuleID:  r.ID,
			Field:   "evaluator",
		}
	}
	if err := validateThresholds(r.ID, r.ConfLow, r.ConfHigh); err != nil {
		return err
	}
	if r.DwellMs < 0 {
		return &ConfigError{
			Code:    ErrCodeInvalidDwell,
			Message: "dwell must not be negative",
			RuleID:  r.ID,
			Field:   "dwell_ms",
		}
	}
	return nil
}

func validateThresholds(ruleID string, low, high float64) error {
	if !unitInterval(high) {
		return &ConfigError{
			Code:    ErrCodeInvalidThreshold,
			Message: "conf_high must be within [0,1]",
			RuleID:  ruleID,
			Field:   "conf_high",
		}
	}
	if !unitInterval(low) {
		return &ConfigError{
			Code:    ErrCodeInvalidThreshold,
			Message: "conf_low must be within [0,1]",
			RuleID:  ruleID,
			Field:   "conf_low",
		}
	}
	if low > high {
		return &ConfigError{
			Code:    ErrCodeInvalidThreshold,
			Message: "conf_low must not exceed conf_high",
			RuleID:  ruleID,
			Field:   "conf_low",
		}
	}
	return nil
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// sanitize clamps a confidence into [0,1]. NaN and ±Inf read as 0.
func sanitize(c float64) float64 {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
