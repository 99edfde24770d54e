package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/roach88/latch/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Rule structure (E101-E109)
	ErrEmptyRuleID     = "E101" // rule id is required
	ErrDuplicateRuleID = "E102" // two rules share an id
	ErrUnknownState    = "E103" // from/to outside the state set
	ErrInvalidWhen     = "E104" // condition missing its operand

	// Tuning (E110-E119)
	ErrThresholdRange = "E110" // threshold outside [0,1] or low > high
	ErrNegativeDwell  = "E111" // dwell_ms < 0

	// Inhibition (E120-E129)
	ErrUnknownInhibit = "E120" // inhibit target is not a rule in the set
	ErrSelfInhibit    = "E121" // rule inhibits itself

	// Lifecycle config (E130-E139)
	ErrInvalidConfig = "E130"
)

// maxSuggestDistance bounds how far a typo may be from a known name before
// Validate stops suggesting it.
const maxSuggestDistance = 3

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	RuleID  string `json:"rule_id,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.RuleID, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled rule set as a whole.
// Returns all errors found (does not fail-fast), in rule order.
func Validate(specs []ir.RuleSpec) []ValidationError {
	var errs []ValidationError

	ids := make(map[string]bool, len(specs))
	var idList []string
	for _, s := range specs {
		if s.ID != "" && !ids[s.ID] {
			ids[s.ID] = true
			idList = append(idList, s.ID)
		}
	}

	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if s.ID == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rules[%d].id", i),
				Message: "rule id is required",
				Code:    ErrEmptyRuleID,
			})
		} else if seen[s.ID] {
			errs = append(errs, ValidationError{
				Field:   "id",
				Message: fmt.Sprintf("duplicate rule id %q", s.ID),
				Code:    ErrDuplicateRuleID,
				RuleID:  s.ID,
			})
		}
		seen[s.ID] = true

		errs = append(errs, validateState(s, "from", s.From)...)
		errs = append(errs, validateState(s, "to", s.To)...)
		errs = append(errs, validateCondition(s)...)
		errs = append(errs, validateTuning(s)...)

		for _, target := range s.Inhibits {
			switch {
			case target == s.ID:
				errs = append(errs, ValidationError{
					Field:   "inhibits",
					Message: "rule inhibits itself",
					Code:    ErrSelfInhibit,
					RuleID:  s.ID,
				})
			case !ids[target]:
				errs = append(errs, ValidationError{
					Field:   "inhibits",
					Message: fmt.Sprintf("unknown rule %q%s", target, suggestion(target, idList)),
					Code:    ErrUnknownInhibit,
					RuleID:  s.ID,
				})
			}
		}
	}

	return errs
}

func validateState(s ir.RuleSpec, field string, state ir.StateID) []ValidationError {
	if state.Valid() {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("unknown state %q%s", state, suggestion(strings.ToUpper(string(state)), ir.StateNames())),
		Code:    ErrUnknownState,
		RuleID:  s.ID,
	}}
}

func validateCondition(s ir.RuleSpec) []ValidationError {
	c := s.Condition
	var msg string
	switch c.Kind {
	case ir.ConditionLabel:
		if strings.TrimSpace(c.Label) == "" {
			msg = "label must not be empty"
		}
	case ir.ConditionAnyLabel:
		if len(c.Labels) == 0 {
			msg = "labels must not be empty"
		}
	case ir.ConditionExtra:
		if strings.TrimSpace(c.Key) == "" {
			msg = "extra key must not be empty"
		}
	default:
		msg = fmt.Sprintf("unknown condition kind %q", c.Kind)
	}
	if msg == "" {
		return nil
	}
	return []ValidationError{{Field: "when", Message: msg, Code: ErrInvalidWhen, RuleID: s.ID}}
}

func validateTuning(s ir.RuleSpec) []ValidationError {
	var errs []ValidationError
	inUnit := func(f float64) bool { return !math.IsNaN(f) && f >= 0 && f <= 1 }
	if !inUnit(s.ConfHigh) {
		errs = append(errs, ValidationError{Field: "conf_high", Message: "must be within [0,1]", Code: ErrThresholdRange, RuleID: s.ID})
	}
	if !inUnit(s.ConfLow) {
		errs = append(errs, ValidationError{Field: "conf_low", Message: "must be within [0,1]", Code: ErrThresholdRange, RuleID: s.ID})
	}
	if inUnit(s.ConfHigh) && inUnit(s.ConfLow) && s.ConfLow > s.ConfHigh {
		errs = append(errs, ValidationError{Field: "conf_low", Message: "must not exceed conf_high", Code: ErrThresholdRange, RuleID: s.ID})
	}
	if s.DwellMs < 0 {
		errs = append(errs, ValidationError{Field: "dwell_ms", Message: "must not be negative", Code: ErrNegativeDwell, RuleID: s.ID})
	}
	return errs
}

// ValidateConfig checks lifecycle knobs compiled from a lifecycle block.
func ValidateConfig(cfg ir.Config) []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: "lifecycle." + field, Message: msg, Code: ErrInvalidConfig})
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"dwell_ready_ms", cfg.DwellReadyMs},
		{"dwell_commit_ms", cfg.DwellCommitMs},
		{"coast_timeout_ms", cfg.CoastTimeoutMs},
	} {
		if f.v < 0 {
			add(f.name, "must not be negative")
		}
	}
	if !(cfg.ConfLow >= 0 && cfg.ConfLow <= cfg.ConfHigh && cfg.ConfHigh <= 1) {
		add("conf_low", "need 0 <= conf_low <= conf_high <= 1")
	}
	if !(cfg.CoastConfLow >= 0 && cfg.CoastConfLow <= cfg.CoastConfHigh && cfg.CoastConfHigh <= 1) {
		add("coast_conf_low", "need 0 <= coast_conf_low <= coast_conf_high <= 1")
	}
	for _, g := range []struct{ name, v string }{
		{"gestures.ready", cfg.ReadyGesture},
		{"gestures.release", cfg.ReleaseGesture},
		{"gestures.commit", cfg.CommitGesture},
	} {
		if strings.TrimSpace(g.v) == "" {
			add(g.name, "must not be empty")
		}
	}
	return errs
}

// suggestion returns a "did you mean" suffix for the closest candidate,
// or "" when nothing is close enough.
func suggestion(name string, candidates []string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
