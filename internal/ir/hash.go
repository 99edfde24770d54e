package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainTransition = "latch/transition/v1"
	DomainRuleset    = "latch/ruleset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransitionID computes the content-addressed ID of a transition.
// The ID is stable across replays given the same session and sequence.
func TransitionID(t Transition) (string, error) {
	obj := IRObject{
		"session_id": IRString(t.SessionID),
		"seq":        IRInt(t.Seq),
		"cause":      IRString(t.Cause),
		"rule_id":    IRString(t.RuleID),
		"from":       IRString(t.From),
		"to":         IRString(t.To),
		"t":          IRInt(t.TimestampMs),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransitionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransition, canonical), nil
}

// RulesetHash fingerprints an ordered rule set together with its config.
// Sessions record it so replays can detect rule drift.
func RulesetHash(specs []RuleSpec, cfg Config) (string, error) {
	rules := make(IRArray, len(specs))
	for i, s := range specs {
		rules[i] = s.Canonical()
	}
	obj := IRObject{
		"rules":  rules,
		"config": cfg.Canonical(),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RulesetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleset, canonical), nil
}

// Canonical returns the config as an IRObject with thresholds in basis points.
func (c Config) Canonical() IRObject {
	return IRObject{
		"dwell_ready_ms":     IRInt(c.DwellReadyMs),
		"dwell_commit_ms":    IRInt(c.DwellCommitMs),
		"coast_timeout_ms":   IRInt(c.CoastTimeoutMs),
		"coast_conf_low_bp":  IRInt(BasisPoints(c.CoastConfLow)),
		"coast_conf_high_bp": IRInt(BasisPoints(c.CoastConfHigh)),
		"conf_high_bp":       IRInt(BasisPoints(c.ConfHigh)),
		"conf_low_bp":        IRInt(BasisPoints(c.ConfLow)),
		"ready_gesture":      IRString(c.ReadyGesture),
		"release_gesture":    IRString(c.ReleaseGesture),
		"commit_gesture":     IRString(c.CommitGesture),
	}
}
