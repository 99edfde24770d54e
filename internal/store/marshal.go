package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/latch/internal/ir"
)

// marshalExtras converts frame extras to canonical JSON TEXT for storage.
func marshalExtras(extras ir.IRObject) (string, error) {
	if extras == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(extras)
	if err != nil {
		return "", fmt.Errorf("marshal extras: %w", err)
	}
	return string(data), nil
}

// unmarshalExtras parses extras TEXT. Empty objects read back as nil so a
// frame without extras round-trips unchanged.
func unmarshalExtras(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal extras: %w", err)
	}
	return obj, nil
}

// marshalConfig and marshalRules store what a session ran with. These are
// plain encoding/json: thresholds are floats, which canonical JSON rejects.
func marshalConfig(cfg ir.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func unmarshalConfig(data string) (ir.Config, error) {
	var cfg ir.Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return ir.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func marshalRules(rules []ir.RuleSpec) (string, error) {
	if rules == nil {
		rules = []ir.RuleSpec{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	return string(data), nil
}

func unmarshalRules(data string) ([]ir.RuleSpec, error) {
	var rules []ir.RuleSpec
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return rules, nil
}
