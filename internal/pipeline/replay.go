package pipeline

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/latch/internal/engine"
	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/store"
)

// ReplayResult is the outcome of re-executing one recorded session.
type ReplayResult struct {
	SessionID     string          `json:"session_id"`
	Entity        string          `json:"entity"`
	EngineVersion string          `json:"engine_version"`
	Inputs        int             `json:"inputs"`
	Recorded      []ir.Transition `json:"-"`
	Replayed      []ir.Transition `json:"-"`
	Match         bool            `json:"match"`

	// Divergence is the index of the first transition that differs,
	// or -1 when the runs match.
	Divergence int    `json:"divergence"`
	Diff       string `json:"diff,omitempty"`

	// Rejected counts recorded inputs the lifecycle refused on replay.
	Rejected int `json:"rejected"`
}

// VersionMismatch reports whether the session was recorded by another
// engine version. Such replays may legitimately diverge.
func (r ReplayResult) VersionMismatch() bool {
	return r.EngineVersion != ir.EngineVersion
}

// Replay rebuilds a session's lifecycle from its recorded rules and config,
// re-executes every recorded input and compares the transitions with the
// recorded ones. The store is only read.
func Replay(ctx context.Context, st *store.Store, sessionID string) (ReplayResult, error) {
	sess, err := st.ReadSession(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	hash, err := ir.RulesetHash(sess.Rules, sess.Config)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", sessionID, err)
	}
	if hash != sess.RulesetHash {
		return ReplayResult{}, fmt.Errorf("replay %s: ruleset hash mismatch: recorded %s, computed %s",
			sessionID, sess.RulesetHash, hash)
	}

	inputs, err := st.ReadInputs(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", sessionID, err)
	}
	recorded, err := st.ReadTransitions(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	var replayed []ir.Transition
	lc, err := newLifecycle(sess.Config, sess.Rules,
		engine.WithSessionID(sess.ID),
		engine.WithObserver(func(t ir.Transition) {
			replayed = append(replayed, t)
		}),
	)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	result := ReplayResult{
		SessionID:     sess.ID,
		Entity:        sess.Entity,
		EngineVersion: sess.EngineVersion,
		Inputs:        len(inputs),
		Recorded:      recorded,
	}
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return ReplayResult{}, err
		}
		if err := applyInput(lc, in); err != nil {
			result.Rejected++
		}
	}

	result.Replayed = replayed
	result.Divergence = firstDivergence(recorded, replayed)
	result.Match = result.Divergence == -1
	if !result.Match {
		result.Diff = cmp.Diff(recorded, replayed)
	}
	return result, nil
}

func firstDivergence(a, b []ir.Transition) int {
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return min(len(a), len(b))
	}
	return -1
}
