package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/queryir"
)

func i64(v int64) *int64 { return &v }

func TestCompile_SelectAll(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(queryir.Select{From: queryir.TableSessions})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, entity, ruleset_hash, engine_version, config_json FROM sessions ORDER BY id COLLATE BINARY ASC",
		sql)
	assert.Empty(t, params)
}

func TestCompile_TransitionFilter(t *testing.T) {
	q := &queryir.Select{
		From:   queryir.TableTransitions,
		Fields: []string{"seq", "to_state"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "session_id", Value: ir.IRString("s1")},
			queryir.In{Field: "cause", Values: []ir.IRValue{ir.IRString("rule"), ir.IRString("snaplock")}},
			queryir.Range{Field: "seq", Min: i64(2), Max: i64(9)},
		}},
		Limit: 5,
	}

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT seq, to_state FROM transitions"+
			" WHERE session_id = ? AND cause IN (?, ?) AND seq BETWEEN ? AND ?"+
			" ORDER BY session_id COLLATE BINARY ASC, seq ASC, id COLLATE BINARY ASC"+
			" LIMIT ?",
		sql)
	assert.Equal(t, []any{"s1", "rule", "snaplock", int64(2), int64(9), 5}, params)
	assert.NotContains(t, sql, "s1", "values are never interpolated")
}

func TestCompile_OpenRanges(t *testing.T) {
	tests := []struct {
		name   string
		r      queryir.Range
		want   string
		params []any
	}{
		{"min", queryir.Range{Field: "ts_ms", Min: i64(10)}, "ts_ms >= ?", []any{int64(10)}},
		{"max", queryir.Range{Field: "ts_ms", Max: i64(20)}, "ts_ms <= ?", []any{int64(20)}},
		{"unbounded", queryir.Range{Field: "ts_ms"}, "1 = 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := NewSQLCompiler().Compile(queryir.Select{From: queryir.TableInputs, Filter: tt.r})
			require.NoError(t, err)
			assert.Contains(t, sql, " WHERE "+tt.want+" ORDER BY session_id COLLATE BINARY ASC, seq ASC")
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestCompile_NestedAndParenthesized(t *testing.T) {
	q := queryir.Select{
		From: queryir.TableInputs,
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "kind", Value: ir.IRString("frame")},
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "label", Value: ir.IRString("pinch")},
				queryir.Range{Field: "confidence_bp", Min: i64(6400)},
			}},
		}},
	}
	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE kind = ? AND (label = ? AND confidence_bp >= ?)")
	assert.Equal(t, []any{"frame", "pinch", int64(6400)}, params)
}

func TestCompile_EmptyAnd(t *testing.T) {
	sql, _, err := NewSQLCompiler().Compile(queryir.Select{From: queryir.TableInputs, Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 1")
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(queryir.Select{
		From:   queryir.TableTransitions,
		Filter: queryir.Equals{Field: "id; DROP TABLE transitions", Value: ir.IRString("x")},
	})
	require.Error(t, err)

	var ve *queryir.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCompile_Deterministic(t *testing.T) {
	q := queryir.Select{
		From: queryir.TableTransitions,
		Filter: queryir.Where(
			queryir.Equals{Field: "session_id", Value: ir.IRString("s")},
			queryir.Equals{Field: "rule_id", Value: ir.IRString("r")},
		),
	}
	first, _, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)
	for range 20 {
		again, _, err := NewSQLCompiler().Compile(q)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Columns(queryir.Select{From: queryir.TableInputs, Fields: []string{"a", "b"}}))
	assert.Equal(t,
		[]string{"id", "session_id", "seq", "cause", "rule_id", "from_state", "to_state", "ts_ms"},
		Columns(queryir.Select{From: queryir.TableTransitions}))
}
