package store

import (
	"context"
	"fmt"

	"github.com/roach88/latch/internal/ir"
)

// Summary aggregates one session's trace.
type Summary struct {
	SessionID       string                     `json:"session_id"`
	Entity          string                     `json:"entity"`
	InputCount      int                        `json:"input_count"`
	FrameCount      int                        `json:"frame_count"`
	TransitionCount int                        `json:"transition_count"`
	FinalState      ir.StateID                 `json:"final_state"`
	LastSeq         int64                      `json:"last_seq"`
	Causes          map[ir.TransitionCause]int `json:"causes"`
	RuleFirings     map[string]int             `json:"rule_firings"`
}

// SessionSummary reads a session and summarizes its trace.
// FinalState is the target of the last transition, or ir.Baseline when the
// session never transitioned. Returns sql.ErrNoRows (wrapped) for unknown
// sessions.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("session summary: %w", err)
	}

	sum := Summary{
		SessionID:   sess.ID,
		Entity:      sess.Entity,
		FinalState:  ir.Baseline,
		Causes:      map[ir.TransitionCause]int{},
		RuleFirings: map[string]int{},
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(kind = 'frame'), 0)
		FROM inputs
		WHERE session_id = ?
	`, sessionID).Scan(&sum.InputCount, &sum.FrameCount); err != nil {
		return Summary{}, fmt.Errorf("session summary: count inputs: %w", err)
	}

	transitions, err := s.ReadTransitions(ctx, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("session summary: %w", err)
	}
	sum.TransitionCount = len(transitions)
	for _, t := range transitions {
		sum.Causes[t.Cause]++
		if t.RuleID != "" {
			sum.RuleFirings[t.RuleID]++
		}
	}
	if n := len(transitions); n > 0 {
		sum.FinalState = transitions[n-1].To
		sum.LastSeq = transitions[n-1].Seq
	}
	return sum, nil
}
