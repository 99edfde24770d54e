package pipeline

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
)

// recordSession runs a session touching every input kind and returns the
// transitions the live run emitted.
func recordSession(t *testing.T, h *harness) []ir.Transition {
	t.Helper()
	ctx := context.Background()

	ts := h.feed(t, "left", "open_palm", 0.95, 0, 11)
	ts = h.feed(t, "left", "pinch", 0.87654, ts, 9)
	require.NoError(t, h.p.Process(ctx, ForceCoastEvent("left", ts)))

	dwell := int64(40)
	require.NoError(t, h.p.Process(ctx, ConfigureEvent("left", lifecycle.ConfigPatch{DwellCommitMs: &dwell})))
	ts = h.feed(t, "left", "pinch", 0.9, ts+10, 3)

	cfg := ir.DefaultConfig()
	cfg.ReleaseGesture = "thumbs_down"
	require.NoError(t, h.p.Process(ctx, ReloadEvent(nil, cfg)))
	ts = h.feed(t, "left", "thumbs_down", 0.99, ts, 12)
	require.NoError(t, h.p.Process(ctx, ForceIdleEvent("left", ts)))

	out := make([]ir.Transition, len(h.changes))
	for i, c := range h.changes {
		out[i] = c.t
	}
	return out
}

func TestReplay_Matches(t *testing.T) {
	st := openStore(t)
	h := newPipeline(t, WithStore(st))
	live := recordSession(t, h)
	require.GreaterOrEqual(t, len(live), 3)

	result, err := Replay(context.Background(), st, "s1")
	require.NoError(t, err)

	assert.True(t, result.Match, result.Diff)
	assert.Equal(t, -1, result.Divergence)
	assert.Empty(t, result.Diff)
	assert.Equal(t, "left", result.Entity)
	assert.Equal(t, 11+9+1+1+3+1+12+1, result.Inputs)
	assert.Zero(t, result.Rejected)
	assert.False(t, result.VersionMismatch())
	assert.Equal(t, live, result.Replayed)
	assert.Equal(t, live, result.Recorded)
}

// tamper rewrites the recorded trace through a second connection.
func tamper(t *testing.T, path, query string, args ...any) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(query, args...)
	require.NoError(t, err)
}

func TestReplay_DetectsMissingTransition(t *testing.T) {
	st, path := openStoreAt(t)
	h := newPipeline(t, WithStore(st))
	live := recordSession(t, h)
	ctx := context.Background()

	tamper(t, path, `DELETE FROM transitions WHERE id = ?`, live[len(live)-1].ID)

	result, err := Replay(ctx, st, "s1")
	require.NoError(t, err)
	assert.False(t, result.Match)
	assert.Equal(t, len(live)-1, result.Divergence)
	assert.NotEmpty(t, result.Diff)
}

func TestReplay_DetectsAlteredInput(t *testing.T) {
	st, path := openStoreAt(t)
	h := newPipeline(t, WithStore(st))
	recordSession(t, h)
	ctx := context.Background()

	tamper(t, path, `UPDATE inputs SET confidence_bp = 0 WHERE session_id = ? AND kind = 'frame'`, "s1")

	result, err := Replay(ctx, st, "s1")
	require.NoError(t, err)
	assert.False(t, result.Match)
	assert.Equal(t, 0, result.Divergence)
}

func TestReplay_RulesetHashMismatch(t *testing.T) {
	st, path := openStoreAt(t)
	h := newPipeline(t, WithStore(st))
	h.feed(t, "left", "open_palm", 0.95, 0, 1)
	ctx := context.Background()

	tamper(t, path, `UPDATE sessions SET ruleset_hash = 'bogus' WHERE id = ?`, "s1")

	_, err := Replay(ctx, st, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ruleset hash mismatch")
}

func TestReplay_UnknownSession(t *testing.T) {
	st := openStore(t)
	_, err := Replay(context.Background(), st, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFirstDivergence(t *testing.T) {
	a := ir.Transition{ID: "a"}
	b := ir.Transition{ID: "b"}
	tests := []struct {
		name     string
		rec, rep []ir.Transition
		want     int
	}{
		{"both empty", nil, nil, -1},
		{"equal", []ir.Transition{a, b}, []ir.Transition{a, b}, -1},
		{"differs", []ir.Transition{a, b}, []ir.Transition{a, a}, 1},
		{"replay longer", []ir.Transition{a}, []ir.Transition{a, b}, 1},
		{"replay shorter", []ir.Transition{a, b}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstDivergence(tt.rec, tt.rep))
		})
	}
}
