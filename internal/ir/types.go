package ir

import "math"

// SensorFrame is one pre-classified reading delivered to a machine.
// Frames are treated as immutable by every consumer.
type SensorFrame struct {
	// Entity names the tracked entity (e.g. "left", "right").
	// Only the multi-entity pipeline reads it.
	Entity string `json:"entity,omitempty"`

	// Label is the gesture label produced by the upstream classifier.
	Label string `json:"label"`

	// Confidence of Label in [0,1]. Out-of-range and non-finite values
	// are clamped by the engine, never trusted.
	Confidence float64 `json:"confidence"`

	// TimestampMs is the capture time in milliseconds.
	TimestampMs int64 `json:"t"`

	// Extras carries additional signals for custom evaluators.
	Extras IRObject `json:"extras,omitempty"`
}

// Snapshot is the read-only view of a machine after a frame.
type Snapshot struct {
	State      StateID `json:"state"`
	IsLatched  bool    `json:"is_latched"`
	IsCoasting bool    `json:"is_coasting"`
	IsPinching bool    `json:"is_pinching"`
	StateSince int64   `json:"state_since"`
}

// SnapshotOf derives a Snapshot for state s entered at since.
func SnapshotOf(s StateID, since int64) Snapshot {
	return Snapshot{
		State:      s,
		IsLatched:  s.IsLatched(),
		IsCoasting: s.IsCoast(),
		IsPinching: s.IsPinching(),
		StateSince: since,
	}
}

// Condition kinds understood by the condition package.
const (
	ConditionLabel    = "label"
	ConditionAnyLabel = "any_label"
	ConditionExtra    = "extra"
)

// ConditionSpec declares how a rule's confidence is computed from a frame.
type ConditionSpec struct {
	Kind   string   `json:"kind"`
	Label  string   `json:"label,omitempty"`
	Labels []string `json:"labels,omitempty"`
	Key    string   `json:"key,omitempty"`
}

// RuleSpec is the declarative form of a transition rule, as compiled from
// CUE or listed by a lifecycle. The engine pairs it with an evaluator.
type RuleSpec struct {
	ID        string        `json:"id"`
	From      StateID       `json:"from"`
	To        StateID       `json:"to"`
	Condition ConditionSpec `json:"when"`
	ConfHigh  float64       `json:"conf_high"`
	ConfLow   float64       `json:"conf_low"`
	DwellMs   int64         `json:"dwell_ms"`
	Priority  int           `json:"priority"`
	Inhibits  []string      `json:"inhibits,omitempty"`
}

// Canonical returns the rule as an IRObject suitable for MarshalCanonical.
// Thresholds are expressed in basis points.
func (r RuleSpec) Canonical() IRObject {
	inhibits := make(IRArray, len(r.Inhibits))
	for i, id := range r.Inhibits {
		inhibits[i] = IRString(id)
	}
	when := IRObject{"kind": IRString(r.Condition.Kind)}
	if r.Condition.Label != "" {
		when["label"] = IRString(r.Condition.Label)
	}
	if len(r.Condition.Labels) > 0 {
		labels := make(IRArray, len(r.Condition.Labels))
		for i, l := range r.Condition.Labels {
			labels[i] = IRString(l)
		}
		when["labels"] = labels
	}
	if r.Condition.Key != "" {
		when["key"] = IRString(r.Condition.Key)
	}
	return IRObject{
		"id":           IRString(r.ID),
		"from":         IRString(r.From),
		"to":           IRString(r.To),
		"when":         when,
		"conf_high_bp": IRInt(BasisPoints(r.ConfHigh)),
		"conf_low_bp":  IRInt(BasisPoints(r.ConfLow)),
		"dwell_ms":     IRInt(r.DwellMs),
		"priority":     IRInt(r.Priority),
		"inhibits":     inhibits,
	}
}

// Config holds the lifecycle knobs shared by the six canonical rules and
// the coast policy.
type Config struct {
	DwellReadyMs   int64   `json:"dwell_ready_ms" mapstructure:"dwell_ready_ms" yaml:"dwell_ready_ms"`
	DwellCommitMs  int64   `json:"dwell_commit_ms" mapstructure:"dwell_commit_ms" yaml:"dwell_commit_ms"`
	CoastTimeoutMs int64   `json:"coast_timeout_ms" mapstructure:"coast_timeout_ms" yaml:"coast_timeout_ms"`
	CoastConfLow   float64 `json:"coast_conf_low" mapstructure:"coast_conf_low" yaml:"coast_conf_low"`
	CoastConfHigh  float64 `json:"coast_conf_high" mapstructure:"coast_conf_high" yaml:"coast_conf_high"`
	ConfHigh       float64 `json:"conf_high" mapstructure:"conf_high" yaml:"conf_high"`
	ConfLow        float64 `json:"conf_low" mapstructure:"conf_low" yaml:"conf_low"`

	ReadyGesture   string `json:"ready_gesture" mapstructure:"ready_gesture" yaml:"ready_gesture"`
	ReleaseGesture string `json:"release_gesture" mapstructure:"release_gesture" yaml:"release_gesture"`
	CommitGesture  string `json:"commit_gesture" mapstructure:"commit_gesture" yaml:"commit_gesture"`
}

// DefaultConfig returns the tuning used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		DwellReadyMs:   100,
		DwellCommitMs:  80,
		CoastTimeoutMs: 500,
		CoastConfLow:   0.30,
		CoastConfHigh:  0.50,
		ConfHigh:       0.64,
		ConfLow:        0.50,
		ReadyGesture:   "open_palm",
		ReleaseGesture: "closed_fist",
		CommitGesture:  "pinch",
	}
}

// TransitionCause records why a machine changed state.
type TransitionCause string

const (
	CauseRule         TransitionCause = "rule"
	CauseCoastEnter   TransitionCause = "coast_enter"
	CauseSnaplock     TransitionCause = "snaplock"
	CauseCoastTimeout TransitionCause = "coast_timeout"
	CauseForceIdle    TransitionCause = "force_idle"
	CauseForceCoast   TransitionCause = "force_coast"
)

// Transition is one state change emitted by a machine.
type Transition struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Seq         int64           `json:"seq"`
	Cause       TransitionCause `json:"cause"`
	RuleID      string          `json:"rule_id,omitempty"`
	From        StateID         `json:"from"`
	To          StateID         `json:"to"`
	TimestampMs int64           `json:"t"`
}

// BasisPoints converts a confidence to an integer in [0,10000].
// Non-finite values map to 0.
func BasisPoints(c float64) int64 {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return int64(math.Round(math.Max(0, math.Min(1, c)) * 10000))
}

// FromBasisPoints is the inverse of BasisPoints.
func FromBasisPoints(bp int64) float64 {
	return float64(bp) / 10000
}
