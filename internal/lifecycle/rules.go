package lifecycle

import (
	"github.com/roach88/latch/internal/condition"
	"github.com/roach88/latch/internal/engine"
	"github.com/roach88/latch/internal/ir"
)

// Canonical rule ids.
const (
	RuleIdleToReady   = "idle_to_ready"
	RuleIdleReinforce = "idle_reinforce"
	RuleReadyToIdle   = "ready_to_idle"
	RuleReadyToCommit = "ready_to_commit"
	RuleCommitToReady = "commit_to_ready"
	RuleCommitToIdle  = "commit_to_idle"
)

// CanonicalRules returns the six rule specs of the latch-until-exit
// lifecycle for cfg, in registration order.
//
// Instant release rules (dwell 0) outrank the slower advance rules they
// compete with, and the two COMMIT exits inhibit each other so one
// ambiguous frame cannot start both.
func CanonicalRules(cfg ir.Config) []ir.RuleSpec {
	ready := ir.ConditionSpec{Kind: ir.ConditionLabel, Label: cfg.ReadyGesture}
	release := ir.ConditionSpec{Kind: ir.ConditionLabel, Label: cfg.ReleaseGesture}
	commit := ir.ConditionSpec{Kind: ir.ConditionLabel, Label: cfg.CommitGesture}

	rule := func(id string, from, to ir.StateID, when ir.ConditionSpec, dwell int64, prio int, inhibits ...string) ir.RuleSpec {
		return ir.RuleSpec{
			ID:        id,
			From:      from,
			To:        to,
			Condition: when,
			ConfHigh:  cfg.ConfHigh,
			ConfLow:   cfg.ConfLow,
			DwellMs:   dwell,
			Priority:  prio,
			Inhibits:  inhibits,
		}
	}

	return []ir.RuleSpec{
		rule(RuleIdleToReady, ir.StateIdle, ir.StateReady, ready, cfg.DwellReadyMs, 0),
		rule(RuleIdleReinforce, ir.StateIdle, ir.StateIdle, release, 0, 5, RuleIdleToReady),
		rule(RuleReadyToIdle, ir.StateReady, ir.StateIdle, release, 0, 10, RuleReadyToCommit),
		rule(RuleReadyToCommit, ir.StateReady, ir.StateCommitPointer, commit, cfg.DwellCommitMs, 0, RuleReadyToIdle),
		rule(RuleCommitToReady, ir.StateCommitPointer, ir.StateReady, ready, cfg.DwellCommitMs, 2, RuleCommitToIdle),
		rule(RuleCommitToIdle, ir.StateCommitPointer, ir.StateIdle, release, cfg.DwellCommitMs, 1, RuleCommitToReady),
	}
}

// BuildRule pairs a rule spec with the stock evaluator for its condition.
func BuildRule(spec ir.RuleSpec) (engine.Rule, error) {
	eval, err := condition.FromSpec(spec.Condition)
	if err != nil {
		return engine.Rule{}, &engine.ConfigError{
			Code:    engine.ErrCodeInvalidCondition,
			Message: err.Error(),
			RuleID:  spec.ID,
			Field:   "when",
		}
	}
	return engine.Rule{
		ID:        spec.ID,
		From:      spec.From,
		To:        spec.To,
		Evaluator: eval,
		ConfHigh:  spec.ConfHigh,
		ConfLow:   spec.ConfLow,
		DwellMs:   spec.DwellMs,
		Priority:  spec.Priority,
		Inhibits:  spec.Inhibits,
		Condition: spec.Condition,
	}, nil
}

// dwellBuckets maps an active state to its legacy (advance, release)
// rule pair.
var dwellBuckets = map[ir.StateID][2]string{
	ir.StateIdle:          {RuleIdleToReady, RuleIdleReinforce},
	ir.StateReady:         {RuleReadyToCommit, RuleReadyToIdle},
	ir.StateCommitPointer: {RuleCommitToReady, RuleCommitToIdle},
}
