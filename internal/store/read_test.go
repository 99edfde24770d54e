package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/queryir"
)

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadSession(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	createTestSession(t, s, "0002", "right")
	createTestSession(t, s, "0001", "left")

	got, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0001", got[0].ID)
	assert.Equal(t, "0002", got[1].ID)
}

func TestReadTransitions_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", "left")

	t3 := createTestTransition(t, "s1", 3, ir.CauseRule, ir.StateReady, ir.StateIdle)
	t1 := createTestTransition(t, "s1", 1, ir.CauseRule, ir.StateIdle, ir.StateReady)
	t2 := createTestTransition(t, "s1", 2, ir.CauseForceCoast, ir.StateReady, ir.StateReadyCoast)
	for _, tr := range []ir.Transition{t3, t1, t2} {
		require.NoError(t, s.WriteTransition(ctx, tr))
	}

	got, err := s.ReadTransitions(ctx, "s1")
	require.NoError(t, err)
	if diff := cmp.Diff([]ir.Transition{t1, t2, t3}, got); diff != "" {
		t.Errorf("ReadTransitions() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTransitions_Empty(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadTransitions(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryTransitions_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", "left")
	createTestSession(t, s, "s2", "right")

	all := []ir.Transition{
		createTestTransition(t, "s1", 1, ir.CauseRule, ir.StateIdle, ir.StateReady),
		createTestTransition(t, "s1", 2, ir.CauseForceCoast, ir.StateReady, ir.StateReadyCoast),
		createTestTransition(t, "s1", 3, ir.CauseSnaplock, ir.StateReadyCoast, ir.StateReady),
		createTestTransition(t, "s1", 4, ir.CauseRule, ir.StateReady, ir.StateIdle),
		createTestTransition(t, "s2", 1, ir.CauseRule, ir.StateIdle, ir.StateReady),
	}
	for _, tr := range all {
		require.NoError(t, s.WriteTransition(ctx, tr))
	}

	lo, hi := int64(2), int64(4)
	tests := []struct {
		name   string
		filter queryir.Predicate
		want   []ir.Transition
	}{
		{"all", nil, all},
		{"by session", queryir.Equals{Field: "session_id", Value: ir.IRString("s2")}, all[4:]},
		{"by cause", queryir.Where(
			queryir.Equals{Field: "session_id", Value: ir.IRString("s1")},
			queryir.In{Field: "cause", Values: []ir.IRValue{ir.IRString("force_coast"), ir.IRString("snaplock")}},
		), all[1:3]},
		{"by target", queryir.Equals{Field: "to_state", Value: ir.IRString("READY")}, []ir.Transition{all[0], all[2], all[4]}},
		{"by seq range", queryir.Where(
			queryir.Equals{Field: "session_id", Value: ir.IRString("s1")},
			queryir.Range{Field: "seq", Min: &lo, Max: &hi},
		), all[1:4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryTransitions(ctx, queryir.Select{From: queryir.TableTransitions, Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryTransitions_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", "left")
	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, s.WriteTransition(ctx, createTestTransition(t, "s1", seq, ir.CauseForceIdle, ir.StateReady, ir.StateIdle)))
	}

	got, err := s.QueryTransitions(ctx, queryir.Select{From: queryir.TableTransitions, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(2), got[1].Seq)
}

func TestQueryTransitions_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.QueryTransitions(ctx, queryir.Select{From: queryir.TableInputs})
	assert.Error(t, err, "wrong table")

	_, err = s.QueryTransitions(ctx, queryir.Select{From: queryir.TableTransitions, Fields: []string{"id"}})
	assert.Error(t, err, "restricted fields")

	_, err = s.QueryTransitions(ctx, queryir.Select{
		From:   queryir.TableTransitions,
		Filter: queryir.Equals{Field: "bogus", Value: ir.IRString("x")},
	})
	var ve *queryir.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestQueryInputs_ByKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1", "left")

	require.NoError(t, s.WriteInput(ctx, frameInput("s1", 1, "open_palm", 0.9)))
	require.NoError(t, s.WriteInput(ctx, Input{SessionID: "s1", Seq: 2, Kind: InputForceCoast, Frame: ir.SensorFrame{TimestampMs: 20}}))
	require.NoError(t, s.WriteInput(ctx, frameInput("s1", 3, "open_palm", 0.9)))

	got, err := s.QueryInputs(ctx, queryir.Select{
		From:   queryir.TableInputs,
		Filter: queryir.Equals{Field: "kind", Value: ir.IRString(string(InputForceCoast))},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Seq)
	assert.Empty(t, got[0].Payload)
}
