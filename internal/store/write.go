package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/latch/internal/ir"
)

// Session is one entity machine's recorded run.
type Session struct {
	ID            string
	Entity        string
	RulesetHash   string
	EngineVersion string
	IRVersion     string
	Config        ir.Config
	Rules         []ir.RuleSpec
}

// InputKind identifies what a recorded input fed to the machine.
type InputKind string

const (
	InputFrame      InputKind = "frame"
	InputForceIdle  InputKind = "force_idle"
	InputForceCoast InputKind = "force_coast"
	InputConfigure  InputKind = "configure"
	InputRules      InputKind = "rules"
)

// Input is one frame or control event, in the order the session saw it.
//
// For frames, Frame carries the reading with confidence at basis-point
// resolution. For control events only Frame.TimestampMs is set, and
// Payload holds the JSON argument (a config patch or a rule set).
type Input struct {
	SessionID string
	Seq       int64
	Kind      InputKind
	Frame     ir.SensorFrame
	Payload   string
}

// NewSession builds the session record for a lifecycle about to run rules
// under cfg.
func NewSession(id, entity string, rules []ir.RuleSpec, cfg ir.Config) (Session, error) {
	hash, err := ir.RulesetHash(rules, cfg)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:            id,
		Entity:        entity,
		RulesetHash:   hash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		Config:        cfg,
		Rules:         rules,
	}, nil
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	cfgJSON, err := marshalConfig(sess.Config)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	rulesJSON, err := marshalRules(sess.Rules)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, entity, ruleset_hash, engine_version, ir_version, config_json, rules_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Entity,
		sess.RulesetHash,
		sess.EngineVersion,
		sess.IRVersion,
		cfgJSON,
		rulesJSON,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteInput inserts one input record.
// Duplicate (session_id, seq) pairs are silently ignored.
//
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) WriteInput(ctx context.Context, in Input) error {
	return writeInput(ctx, s.db, in)
}

// WriteTransition inserts a transition record.
// Uses ON CONFLICT(id) DO NOTHING: ids are content-addressed, so a
// duplicate write carries identical data.
func (s *Store) WriteTransition(ctx context.Context, t ir.Transition) error {
	return writeTransition(ctx, s.db, t)
}

// RecordStep writes one input together with the transitions it caused,
// in a single transaction. Either everything is written or nothing is.
func (s *Store) RecordStep(ctx context.Context, in Input, transitions []ir.Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record step: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := writeInput(ctx, tx, in); err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	for _, t := range transitions {
		if err := writeTransition(ctx, tx, t); err != nil {
			return fmt.Errorf("record step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record step: commit: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeInput(ctx context.Context, db execer, in Input) error {
	extrasJSON, err := marshalExtras(in.Frame.Extras)
	if err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	payload := in.Payload
	if payload == "" {
		payload = "{}"
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO inputs
		(session_id, seq, kind, label, confidence_bp, ts_ms, extras_json, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		in.SessionID,
		in.Seq,
		string(in.Kind),
		in.Frame.Label,
		ir.BasisPoints(in.Frame.Confidence),
		in.Frame.TimestampMs,
		extrasJSON,
		payload,
	)
	if err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	return nil
}

func writeTransition(ctx context.Context, db execer, t ir.Transition) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transitions
		(id, session_id, seq, cause, rule_id, from_state, to_state, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		t.ID,
		t.SessionID,
		t.Seq,
		string(t.Cause),
		t.RuleID,
		string(t.From),
		string(t.To),
		t.TimestampMs,
	)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}
