package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/queryir"
	"github.com/roach88/latch/internal/querysql"
)

// ReadSession retrieves a single session by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity, ruleset_hash, engine_version, ir_version, config_json, rules_json
		FROM sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

// ListSessions returns every session ordered by id. Session ids are
// UUIDv7, so this is creation order.
//
// Returns an empty slice (not nil) if the store has no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity, ruleset_hash, engine_version, ir_version, config_json, rules_json
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadInputs returns a session's inputs in seq order.
func (s *Store) ReadInputs(ctx context.Context, sessionID string) ([]Input, error) {
	return s.QueryInputs(ctx, queryir.Select{
		From:   queryir.TableInputs,
		Filter: queryir.Equals{Field: "session_id", Value: ir.IRString(sessionID)},
	})
}

// ReadTransitions returns a session's transitions in seq order.
func (s *Store) ReadTransitions(ctx context.Context, sessionID string) ([]ir.Transition, error) {
	return s.QueryTransitions(ctx, queryir.Select{
		From:   queryir.TableTransitions,
		Filter: queryir.Equals{Field: "session_id", Value: ir.IRString(sessionID)},
	})
}

// QueryTransitions runs a transitions query. q must select from
// queryir.TableTransitions with no explicit Fields.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryTransitions(ctx context.Context, q queryir.Select) ([]ir.Transition, error) {
	rows, err := s.runQuery(ctx, q, queryir.TableTransitions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ir.Transition{}
	for rows.Next() {
		var t ir.Transition
		var cause, from, to string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Seq, &cause, &t.RuleID, &from, &to, &t.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Cause = ir.TransitionCause(cause)
		t.From = ir.StateID(from)
		t.To = ir.StateID(to)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// QueryInputs runs an inputs query. q must select from queryir.TableInputs
// with no explicit Fields.
func (s *Store) QueryInputs(ctx context.Context, q queryir.Select) ([]Input, error) {
	rows, err := s.runQuery(ctx, q, queryir.TableInputs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Input{}
	for rows.Next() {
		var in Input
		var kind, extrasJSON string
		var bp int64
		if err := rows.Scan(
			&in.SessionID, &in.Seq, &kind, &in.Frame.Label, &bp,
			&in.Frame.TimestampMs, &extrasJSON, &in.Payload,
		); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		in.Kind = InputKind(kind)
		in.Frame.Confidence = ir.FromBasisPoints(bp)
		if in.Frame.Extras, err = unmarshalExtras(extrasJSON); err != nil {
			return nil, err
		}
		if in.Payload == "{}" {
			in.Payload = ""
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return out, nil
}

func (s *Store) runQuery(ctx context.Context, q queryir.Select, table queryir.Table) (*sql.Rows, error) {
	if q.From != table {
		return nil, fmt.Errorf("query must select from %s, got %q", table, q.From)
	}
	if len(q.Fields) > 0 {
		return nil, fmt.Errorf("query on %s must not restrict fields", table)
	}
	query, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return rows, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var cfgJSON, rulesJSON string
	if err := row.Scan(
		&sess.ID, &sess.Entity, &sess.RulesetHash, &sess.EngineVersion,
		&sess.IRVersion, &cfgJSON, &rulesJSON,
	); err != nil {
		return Session{}, err
	}

	var err error
	if sess.Config, err = unmarshalConfig(cfgJSON); err != nil {
		return Session{}, err
	}
	if sess.Rules, err = unmarshalRules(rulesJSON); err != nil {
		return Session{}, err
	}
	return sess, nil
}
