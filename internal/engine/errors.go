package engine

import (
	"errors"
	"fmt"
)

// ConfigError represents a rejected rule or policy.
//
// Configuration errors are raised synchronously from Register, PatchRule,
// SetCoastPolicy and New. Runtime anomalies (non-finite confidences,
// out-of-order timestamps) never produce a ConfigError; they are clamped.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// RuleID identifies the affected rule, if any.
	RuleID string

	// Field names the offending field (e.g. "from", "conf_high").
	Field string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownState indicates a rule references a state outside ir.ValidStates.
	ErrCodeUnknownState ConfigErrorCode = "UNKNOWN_STATE"

	// ErrCodeUnknownRule indicates an operation named a rule that is not registered.
	ErrCodeUnknownRule ConfigErrorCode = "UNKNOWN_RULE"

	// ErrCodeNilEvaluator indicates a rule was registered without an evaluator.
	ErrCodeNilEvaluator ConfigErrorCode = "NIL_EVALUATOR"

	// ErrCodeInvalidThreshold indicates a threshold outside [0,1] or low > high.
	ErrCodeInvalidThreshold ConfigErrorCode = "INVALID_THRESHOLD"

	// ErrCodeInvalidDwell indicates a negative dwell duration.
	ErrCodeInvalidDwell ConfigErrorCode = "INVALID_DWELL"

	// ErrCodeEmptyRuleID indicates a rule without an id.
	ErrCodeEmptyRuleID ConfigErrorCode = "EMPTY_RULE_ID"

	// ErrCodeInvalidPolicy indicates an unusable coast policy.
	ErrCodeInvalidPolicy ConfigErrorCode = "INVALID_POLICY"

	// ErrCodeInvalidCondition indicates a declarative condition that
	// cannot be turned into an evaluator.
	ErrCodeInvalidCondition ConfigErrorCode = "INVALID_CONDITION"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.RuleID != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s (rule=%s, field=%s)", e.Code, e.Message, e.RuleID, e.Field)
	}
	if e.RuleID != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.RuleID)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownRule returns true if err is an UNKNOWN_RULE ConfigError.
// Uses errors.As to handle wrapped errors.
func IsUnknownRule(err error) bool {
	return hasCode(err, ErrCodeUnknownRule)
}

// IsUnknownState returns true if err is an UNKNOWN_STATE ConfigError.
func IsUnknownState(err error) bool {
	return hasCode(err, ErrCodeUnknownState)
}

// IsConfigError returns true if err wraps any ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func hasCode(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

func newUnknownRuleError(id string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnknownRule,
		Message: "rule is not registered",
		RuleID:  id,
	}
}
