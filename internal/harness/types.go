package harness

import "github.com/roach88/latch/internal/ir"

// Sample is the entity state after one scripted input.
type Sample struct {
	TimestampMs int64      `json:"t"`
	State       ir.StateID `json:"state"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when no assertion failed and the recorded session
	// replays to the same transitions.
	Pass bool `json:"pass"`

	// Entity and SessionID identify the recorded session.
	Entity    string `json:"entity"`
	SessionID string `json:"session_id"`

	// FinalState is the entity state after the last step.
	FinalState ir.StateID `json:"final_state"`

	// Transitions are read back from the store in seq order.
	Transitions []ir.Transition `json:"transitions"`

	// Timeline samples the state after every input, in input order.
	Timeline []Sample `json:"timeline"`

	// Dwells is the accumulated dwell per rule at the end.
	Dwells map[string]int64 `json:"dwells,omitempty"`

	// Errors contains assertion and replay failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Transitions: []ir.Transition{},
		Timeline:    []Sample{},
		Errors:      []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// StateAt returns the state after the last input stamped at or before
// ts. Before the first input the machine is at baseline.
func (r *Result) StateAt(ts int64) ir.StateID {
	state := ir.Baseline
	for _, s := range r.Timeline {
		if s.TimestampMs <= ts {
			state = s.State
		}
	}
	return state
}
