package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
)

func TestCoastPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  CoastPolicy
		wantErr bool
	}{
		{"default", DefaultCoastPolicy(), false},
		{"zero timeout", CoastPolicy{TimeoutMs: 0, ConfLow: 0.3, ConfHigh: 0.5}, false},
		{"equal thresholds", CoastPolicy{TimeoutMs: 10, ConfLow: 0.4, ConfHigh: 0.4}, false},
		{"negative timeout", CoastPolicy{TimeoutMs: -1, ConfLow: 0.3, ConfHigh: 0.5}, true},
		{"low above high", CoastPolicy{TimeoutMs: 10, ConfLow: 0.6, ConfHigh: 0.5}, true},
		{"high above one", CoastPolicy{TimeoutMs: 10, ConfLow: 0.3, ConfHigh: 1.5}, true},
		{"nan", CoastPolicy{TimeoutMs: 10, ConfLow: math.NaN(), ConfHigh: 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCoastPolicyFromConfig(t *testing.T) {
	cfg := ir.DefaultConfig()
	p := CoastPolicyFromConfig(cfg)
	assert.Equal(t, cfg.CoastTimeoutMs, p.TimeoutMs)
	assert.Equal(t, cfg.CoastConfLow, p.ConfLow)
	assert.Equal(t, cfg.CoastConfHigh, p.ConfHigh)
}

func TestMachine_SetCoastPolicy(t *testing.T) {
	m, _ := newTestMachine(t)

	err := m.SetCoastPolicy(CoastPolicy{TimeoutMs: 100, ConfLow: 0.9, ConfHigh: 0.1})
	require.Error(t, err)
	assert.Equal(t, DefaultCoastPolicy(), m.CoastPolicy(), "rejected policy leaves the old one")

	// Raising the entry threshold takes effect on the next frame.
	m.ProcessFrame(frame("x", 0.5, 0))
	require.Equal(t, ir.StateIdle, m.State())

	require.NoError(t, m.SetCoastPolicy(CoastPolicy{TimeoutMs: 100, ConfLow: 0.6, ConfHigh: 0.8}))
	snap := m.ProcessFrame(frame("x", 0.5, 10))
	assert.Equal(t, ir.StateIdleCoast, snap.State)
}

func TestMachine_ForceIdle(t *testing.T) {
	m, rec := newTestMachine(t)
	mustRegister(t, m,
		Rule{ID: "idle_to_ready", From: ir.StateIdle, To: ir.StateReady, Evaluator: labelEval("palm"), ConfHigh: 0.5},
		Rule{ID: "ready_to_commit", From: ir.StateReady, To: ir.StateCommitPointer, Evaluator: labelEval("pinch"), ConfHigh: 0.5, DwellMs: 500},
	)

	m.ProcessFrame(frame("palm", 0.9, 0))
	m.ProcessFrame(frame("pinch", 0.9, 100))
	dwell, _ := m.RuleDwell("ready_to_commit")
	require.Equal(t, int64(100), dwell)

	snap := m.ForceIdle(150)
	assert.Equal(t, ir.StateIdle, snap.State)
	assert.Equal(t, int64(150), snap.StateSince)
	for id, d := range m.RuleDwells() {
		assert.Equal(t, int64(0), d, "dwell of %s", id)
	}

	last := rec.transitions[len(rec.transitions)-1]
	assert.Equal(t, ir.CauseForceIdle, last.Cause)
	assert.Equal(t, ir.StateReady, last.From)

	// Already at baseline: no new transition.
	n := len(rec.transitions)
	m.ForceIdle(200)
	assert.Len(t, rec.transitions, n)
}

func TestMachine_ForceIdleFromCoast(t *testing.T) {
	m, _ := newTestMachine(t)
	m.ProcessFrame(frame("x", 0.1, 0))
	m.ProcessFrame(frame("x", 0.1, 40))
	require.Equal(t, int64(40), m.CoastElapsedMs())

	snap := m.ForceIdle(50)
	assert.Equal(t, ir.StateIdle, snap.State)
	assert.Equal(t, int64(0), m.CoastElapsedMs())
}

func TestMachine_ForceCoastInReady(t *testing.T) {
	m, rec := newTestMachine(t)
	mustRegister(t, m,
		Rule{ID: "idle_to_ready", From: ir.StateIdle, To: ir.StateReady, Evaluator: labelEval("palm"), ConfHigh: 0.5},
		Rule{ID: "ready_to_commit", From: ir.StateReady, To: ir.StateCommitPointer, Evaluator: labelEval("pinch"), ConfHigh: 0.5, DwellMs: 500},
	)
	m.ProcessFrame(frame("palm", 0.9, 0))
	m.ProcessFrame(frame("pinch", 0.9, 70))

	snap := m.ForceCoast(80)
	assert.Equal(t, ir.StateReadyCoast, snap.State)
	assert.True(t, snap.IsCoasting)
	assert.True(t, snap.IsLatched)
	assert.Equal(t, int64(80), snap.StateSince)

	dwell, _ := m.RuleDwell("ready_to_commit")
	assert.Equal(t, int64(70), dwell, "force coast keeps dwell")

	last := rec.transitions[len(rec.transitions)-1]
	assert.Equal(t, ir.CauseForceCoast, last.Cause)

	// Already coasting: no-op.
	n := len(rec.transitions)
	snap = m.ForceCoast(90)
	assert.Equal(t, ir.StateReadyCoast, snap.State)
	assert.Equal(t, int64(80), snap.StateSince)
	assert.Len(t, rec.transitions, n)
}

func TestMachine_CoastRulesEvaluatedAfterCoastChecks(t *testing.T) {
	m, rec := newTestMachine(t)
	mustRegister(t, m, Rule{
		ID: "coast_reset", From: ir.StateIdleCoast, To: ir.StateIdle,
		Evaluator: labelEval("reset"), ConfHigh: 0.3,
	})

	m.ProcessFrame(frame("reset", 0.1, 0))
	require.Equal(t, ir.StateIdleCoast, m.State())

	// 0.4 is below snaplock, so the coast rule gets its turn.
	snap := m.ProcessFrame(frame("reset", 0.4, 10))
	assert.Equal(t, ir.StateIdle, snap.State)
	assert.Equal(t, "coast_reset", rec.transitions[len(rec.transitions)-1].RuleID)
	assert.Equal(t, int64(0), m.CoastElapsedMs())
}
