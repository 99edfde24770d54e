package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionIDDeterminism(t *testing.T) {
	tr := Transition{
		SessionID:   "session-1",
		Seq:         3,
		Cause:       CauseRule,
		RuleID:      "idle_to_ready",
		From:        StateIdle,
		To:          StateReady,
		TimestampMs: 100,
	}

	id1, err := TransitionID(tr)
	require.NoError(t, err)
	id2, err := TransitionID(tr)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "TransitionID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")

	tr.Seq = 4
	id3, err := TransitionID(tr)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3, "different seq should produce different IDs")
}

func TestTransitionIDIgnoresExistingID(t *testing.T) {
	tr := Transition{SessionID: "s", Seq: 1, Cause: CauseForceIdle, From: StateReady, To: StateIdle}
	id1, err := TransitionID(tr)
	require.NoError(t, err)

	tr.ID = "stale"
	id2, err := TransitionID(tr)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestRulesetHashChangesWithConfig(t *testing.T) {
	specs := []RuleSpec{{
		ID:        "idle_to_ready",
		From:      StateIdle,
		To:        StateReady,
		Condition: ConditionSpec{Kind: ConditionLabel, Label: "open_palm"},
		ConfHigh:  0.64,
		ConfLow:   0.5,
		DwellMs:   100,
	}}

	h1, err := RulesetHash(specs, DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.CoastTimeoutMs = 900
	h2, err := RulesetHash(specs, cfg)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
