package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
)

func instant(id string, from, to ir.StateID) ir.RuleSpec {
	return ir.RuleSpec{
		ID:        id,
		From:      from,
		To:        to,
		Condition: ir.ConditionSpec{Kind: ir.ConditionLabel, Label: "x"},
		ConfHigh:  0.5,
	}
}

func TestAnalyzeCyclesCanonical(t *testing.T) {
	warnings := AnalyzeCycles(lifecycle.CanonicalRules(ir.DefaultConfig()))
	assert.Empty(t, warnings)
	assert.NotNil(t, warnings)
}

func TestAnalyzeCyclesNone(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCyclesTwoStates(t *testing.T) {
	warnings := AnalyzeCycles([]ir.RuleSpec{
		instant("up", ir.StateIdle, ir.StateReady),
		instant("down", ir.StateReady, ir.StateIdle),
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"IDLE", "READY", "IDLE"}, warnings[0].Path)
	assert.Equal(t, []string{"up", "down"}, warnings[0].Rules)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "IDLE -> READY -> IDLE")
}

func TestAnalyzeCyclesThreeStates(t *testing.T) {
	warnings := AnalyzeCycles([]ir.RuleSpec{
		instant("a", ir.StateReady, ir.StateCommitPointer),
		instant("b", ir.StateCommitPointer, ir.StateIdle),
		instant("c", ir.StateIdle, ir.StateReady),
	})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"IDLE", "READY", "COMMIT_POINTER", "IDLE"}, warnings[0].Path)
	assert.Equal(t, []string{"c", "a", "b"}, warnings[0].Rules)
}

func TestAnalyzeCyclesIgnoresDwellAndSelfLoops(t *testing.T) {
	slow := instant("down", ir.StateReady, ir.StateIdle)
	slow.DwellMs = 50
	warnings := AnalyzeCycles([]ir.RuleSpec{
		instant("up", ir.StateIdle, ir.StateReady),
		slow,
		instant("stay", ir.StateIdle, ir.StateIdle),
	})
	assert.Empty(t, warnings)
}

func TestAnalyzeCyclesDeterministic(t *testing.T) {
	specs := []ir.RuleSpec{
		instant("up", ir.StateIdle, ir.StateReady),
		instant("down", ir.StateReady, ir.StateIdle),
		instant("c1", ir.StateCommitPointer, ir.StateCommitCoast),
		instant("c2", ir.StateCommitCoast, ir.StateCommitPointer),
	}
	first := AnalyzeCycles(specs)
	for range 10 {
		assert.Equal(t, first, AnalyzeCycles(specs))
	}
	require.Len(t, first, 2)
}
