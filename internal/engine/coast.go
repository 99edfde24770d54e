package engine

import (
	"fmt"

	"github.com/roach88/latch/internal/ir"
)

// CoastPolicy controls degraded-signal handling.
//
// The two confidence thresholds form a Schmitt trigger: a frame below
// ConfLow enters the coast variant of the current state, and only a frame
// at or above ConfHigh snaps back. Values in between keep the machine
// where it is.
type CoastPolicy struct {
	// TimeoutMs is how long a machine may coast before falling back to
	// the baseline state with every dwell cleared.
	TimeoutMs int64 `json:"timeout_ms"`

	// ConfLow is the coast entry threshold (strictly below enters).
	ConfLow float64 `json:"conf_low"`

	// ConfHigh is the snaplock threshold (at or above recovers).
	ConfHigh float64 `json:"conf_high"`
}

// DefaultCoastPolicy returns the policy derived from ir.DefaultConfig.
func DefaultCoastPolicy() CoastPolicy {
	return CoastPolicyFromConfig(ir.DefaultConfig())
}

// CoastPolicyFromConfig extracts the coast fields of a lifecycle config.
func CoastPolicyFromConfig(cfg ir.Config) CoastPolicy {
	return CoastPolicy{
		TimeoutMs: cfg.CoastTimeoutMs,
		ConfLow:   cfg.CoastConfLow,
		ConfHigh:  cfg.CoastConfHigh,
	}
}

// Validate checks the policy. A zero timeout is allowed and means the
// first frame after entering coast times out.
func (p CoastPolicy) Validate() error {
	if p.TimeoutMs < 0 {
		return &ConfigError{
			Code:    ErrCodeInvalidPolicy,
			Message: fmt.Sprintf("coast timeout must not be negative, got %d", p.TimeoutMs),
			Field:   "coast_timeout_ms",
		}
	}
	if !unitInterval(p.ConfLow) || !unitInterval(p.ConfHigh) {
		return &ConfigError{
			Code:    ErrCodeInvalidPolicy,
			Message: "coast thresholds must be within [0,1]",
			Field:   "coast_conf",
		}
	}
	if p.ConfLow > p.ConfHigh {
		return &ConfigError{
			Code:    ErrCodeInvalidPolicy,
			Message: fmt.Sprintf("coast conf_low %.2f exceeds conf_high %.2f", p.ConfLow, p.ConfHigh),
			Field:   "coast_conf_low",
		}
	}
	return nil
}

// CoastPolicy returns the active policy.
func (m *Machine) CoastPolicy() CoastPolicy {
	return m.policy
}

// SetCoastPolicy replaces the policy. It takes effect on the next frame
// and leaves the current state, dwell and coast elapsed time untouched.
func (m *Machine) SetCoastPolicy(p CoastPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.policy = p
	return nil
}

// ForceIdle returns the machine to the baseline state and clears every
// dwell accumulator. tsMs becomes the new StateSince. No transition is
// emitted when the machine is already at baseline.
func (m *Machine) ForceIdle(tsMs int64) ir.Snapshot {
	m.reg.zeroAll()
	m.coastElapsedMs = 0
	if m.state != ir.Baseline {
		m.enter(ir.Baseline, ir.CauseForceIdle, "", tsMs)
	}
	return m.Snapshot()
}

// ForceCoast moves the machine into the coast variant of its current
// state, preserving dwell. It is a no-op while already coasting.
func (m *Machine) ForceCoast(tsMs int64) ir.Snapshot {
	if coast, ok := m.state.CoastOf(); ok {
		m.enter(coast, ir.CauseForceCoast, "", tsMs)
	}
	return m.Snapshot()
}
