package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coastTrace records a READY latch, a coast entry and a coast timeout.
func coastTrace(t *testing.T) (string, string) {
	t.Helper()
	frames := palmFrames("left", 0, 11) +
		`{"entity":"left","label":"open_palm","confidence":0.1,"t":110}` + "\n" +
		`{"entity":"left","label":"open_palm","confidence":0.1,"t":610}` + "\n"
	db, _ := recordRun(t, frames)
	ids := sessionIDs(t, db)
	require.Len(t, ids, 1)
	return db, ids[0]
}

func TestTrace_ListSessions(t *testing.T) {
	db, id := coastTrace(t)

	out, _, err := execute(t, nil, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "left")
}

func TestTrace_Transitions(t *testing.T) {
	db, id := coastTrace(t)

	out, _, err := execute(t, nil, "trace", "--db", db, "--session", id)
	require.NoError(t, err)
	assert.Equal(t, "[1] t=100 IDLE -> READY (rule idle_to_ready)\n"+
		"[2] t=110 READY -> READY_COAST (coast_enter)\n"+
		"[3] t=610 READY_COAST -> IDLE (coast_timeout)\n", out)
}

func TestTrace_Filters(t *testing.T) {
	db, id := coastTrace(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"by rule", []string{"--rule", "idle_to_ready"}, "[1] t=100 IDLE -> READY (rule idle_to_ready)\n"},
		{"by causes", []string{"--cause", "coast_enter,coast_timeout", "--limit", "1"}, "[2] t=110 READY -> READY_COAST (coast_enter)\n"},
		{"by target", []string{"--to", "idle"}, "[3] t=610 READY_COAST -> IDLE (coast_timeout)\n"},
		{"no match", []string{"--cause", "snaplock"}, "No transitions.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"trace", "--db", db, "--session", id}, tt.args...)
			out, _, err := execute(t, nil, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestTrace_InvalidState(t *testing.T) {
	db, id := coastTrace(t)

	_, _, err := execute(t, nil, "trace", "--db", db, "--session", id, "--to", "SLEEPING")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrace_Summary(t *testing.T) {
	db, id := coastTrace(t)

	out, _, err := execute(t, nil, "trace", "--db", db, "--session", id, "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Transitions: 3")
	assert.Contains(t, out, "Final state: IDLE")
	assert.Contains(t, out, "Inputs:      13 (13 frames)")
	assert.Contains(t, out, "cause coast_timeout")

	out, _, err = execute(t, nil, "trace", "--db", db, "--session", id, "--summary", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data struct {
			TransitionCount int            `json:"transition_count"`
			RuleFirings     map[string]int `json:"rule_firings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.TransitionCount)
	assert.Equal(t, map[string]int{"idle_to_ready": 1}, resp.Data.RuleFirings)
}

func TestTrace_UnknownSession(t *testing.T) {
	db, _ := coastTrace(t)

	_, _, err := execute(t, nil, "trace", "--db", db, "--session", "nope", "--summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found: nope")
}
