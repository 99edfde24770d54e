package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/latch/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session running the default config.
func createTestSession(t *testing.T, s *Store, id, entity string) Session {
	t.Helper()
	sess, err := NewSession(id, entity, nil, ir.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession() failed: %v", err)
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// createTestTransition builds a transition with its content-addressed id.
func createTestTransition(t *testing.T, sessionID string, seq int64, cause ir.TransitionCause, from, to ir.StateID) ir.Transition {
	t.Helper()
	tr := ir.Transition{
		SessionID:   sessionID,
		Seq:         seq,
		Cause:       cause,
		From:        from,
		To:          to,
		TimestampMs: seq * 10,
	}
	if cause == ir.CauseRule {
		tr.RuleID = string(from) + "->" + string(to)
	}
	id, err := ir.TransitionID(tr)
	if err != nil {
		t.Fatalf("TransitionID() failed: %v", err)
	}
	tr.ID = id
	return tr
}

func frameInput(sessionID string, seq int64, label string, conf float64) Input {
	return Input{
		SessionID: sessionID,
		Seq:       seq,
		Kind:      InputFrame,
		Frame:     ir.SensorFrame{Label: label, Confidence: conf, TimestampMs: seq * 10},
	}
}
