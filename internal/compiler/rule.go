package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/latch/internal/ir"
)

// CompileRule compiles a CUE rule definition into a RuleSpec.
// Omitted thresholds fall back to ir.DefaultConfig.
func CompileRule(v cue.Value) (*ir.RuleSpec, error) {
	return CompileRuleWith(v, ir.DefaultConfig())
}

// CompileRuleWith compiles a CUE rule definition, taking omitted conf_high
// and conf_low from base.
//
// The rule id is the last path selector (rule: idle_to_ready: {...}).
// State names are parsed leniently; names that do not parse are kept
// verbatim so Validate can report them with a suggestion.
func CompileRuleWith(v cue.Value, base ir.Config) (*ir.RuleSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.RuleSpec{
		ConfHigh: base.ConfHigh,
		ConfLow:  base.ConfLow,
	}

	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return nil, &CompileError{Field: "id", Message: "rule must be a named field", Pos: v.Pos()}
	}
	spec.ID = unquote(sels[len(sels)-1].String())

	var err error
	if spec.From, err = compileState(v, "from"); err != nil {
		return nil, err
	}
	if spec.To, err = compileState(v, "to"); err != nil {
		return nil, err
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, &CompileError{Field: "when", Message: "when is required", Pos: v.Pos()}
	}
	if spec.Condition, err = compileCondition(whenVal); err != nil {
		return nil, err
	}

	if err := lookupFloat(v, "conf_high", &spec.ConfHigh); err != nil {
		return nil, err
	}
	if err := lookupFloat(v, "conf_low", &spec.ConfLow); err != nil {
		return nil, err
	}
	if err := lookupInt(v, "dwell_ms", &spec.DwellMs); err != nil {
		return nil, err
	}
	var prio int64
	if err := lookupInt(v, "priority", &prio); err != nil {
		return nil, err
	}
	spec.Priority = int(prio)

	inhibitsVal := v.LookupPath(cue.ParsePath("inhibits"))
	if inhibitsVal.Exists() {
		iter, err := inhibitsVal.List()
		if err != nil {
			return nil, &CompileError{Field: "inhibits", Message: "inhibits must be a list of rule ids", Pos: inhibitsVal.Pos()}
		}
		for iter.Next() {
			id, err := iter.Value().String()
			if err != nil {
				return nil, &CompileError{Field: "inhibits", Message: "inhibit target must be a string", Pos: iter.Value().Pos()}
			}
			spec.Inhibits = append(spec.Inhibits, id)
		}
	}

	return spec, nil
}

func compileState(v cue.Value, field string) (ir.StateID, error) {
	sv := v.LookupPath(cue.ParsePath(field))
	if !sv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	raw, err := sv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "state must be a string", Pos: sv.Pos()}
	}
	if s, err := ir.ParseStateID(raw); err == nil {
		return s, nil
	}
	return ir.StateID(raw), nil
}

// compileCondition accepts exactly one of label, labels or extra.
func compileCondition(v cue.Value) (ir.ConditionSpec, error) {
	var cond ir.ConditionSpec
	set := 0

	if lv := v.LookupPath(cue.ParsePath("label")); lv.Exists() {
		s, err := lv.String()
		if err != nil {
			return cond, &CompileError{Field: "when.label", Message: "label must be a string", Pos: lv.Pos()}
		}
		cond = ir.ConditionSpec{Kind: ir.ConditionLabel, Label: s}
		set++
	}
	if lv := v.LookupPath(cue.ParsePath("labels")); lv.Exists() {
		iter, err := lv.List()
		if err != nil {
			return cond, &CompileError{Field: "when.labels", Message: "labels must be a list of strings", Pos: lv.Pos()}
		}
		cond = ir.ConditionSpec{Kind: ir.ConditionAnyLabel}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return cond, &CompileError{Field: "when.labels", Message: "labels must be a list of strings", Pos: iter.Value().Pos()}
			}
			cond.Labels = append(cond.Labels, s)
		}
		set++
	}
	if kv := v.LookupPath(cue.ParsePath("extra")); kv.Exists() {
		s, err := kv.String()
		if err != nil {
			return cond, &CompileError{Field: "when.extra", Message: "extra must name a key", Pos: kv.Pos()}
		}
		cond = ir.ConditionSpec{Kind: ir.ConditionExtra, Key: s}
		set++
	}

	switch set {
	case 0:
		return cond, &CompileError{Field: "when", Message: "when needs one of label, labels or extra", Pos: v.Pos()}
	case 1:
		return cond, nil
	default:
		return cond, &CompileError{Field: "when", Message: "when must set exactly one condition", Pos: v.Pos()}
	}
}

// CompileConfig overlays a CUE lifecycle block onto base.
func CompileConfig(v cue.Value, base ir.Config) (ir.Config, error) {
	if err := v.Err(); err != nil {
		return base, formatCUEError(err)
	}
	cfg := base

	ints := []struct {
		field string
		dst   *int64
	}{
		{"dwell_ready_ms", &cfg.DwellReadyMs},
		{"dwell_commit_ms", &cfg.DwellCommitMs},
		{"coast_timeout_ms", &cfg.CoastTimeoutMs},
	}
	for _, f := range ints {
		if err := lookupInt(v, f.field, f.dst); err != nil {
			return base, err
		}
	}

	floats := []struct {
		field string
		dst   *float64
	}{
		{"coast_conf_low", &cfg.CoastConfLow},
		{"coast_conf_high", &cfg.CoastConfHigh},
		{"conf_high", &cfg.ConfHigh},
		{"conf_low", &cfg.ConfLow},
	}
	for _, f := range floats {
		if err := lookupFloat(v, f.field, f.dst); err != nil {
			return base, err
		}
	}

	gestures := []struct {
		field string
		dst   *string
	}{
		{"gestures.ready", &cfg.ReadyGesture},
		{"gestures.release", &cfg.ReleaseGesture},
		{"gestures.commit", &cfg.CommitGesture},
	}
	for _, g := range gestures {
		gv := v.LookupPath(cue.ParsePath(g.field))
		if !gv.Exists() {
			continue
		}
		s, err := gv.String()
		if err != nil {
			return base, &CompileError{Field: g.field, Message: "gesture must be a string", Pos: gv.Pos()}
		}
		*g.dst = s
	}

	return cfg, nil
}

// lookupInt sets *dst when field exists. Absent fields leave dst alone.
func lookupInt(v cue.Value, field string, dst *int64) error {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	n, err := fv.Int64()
	if err != nil {
		return &CompileError{Field: field, Message: fmt.Sprintf("%s must be an integer", field), Pos: fv.Pos()}
	}
	*dst = n
	return nil
}

// lookupFloat accepts both int and float literals (conf_high: 1).
func lookupFloat(v cue.Value, field string, dst *float64) error {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	switch fv.Kind() {
	case cue.IntKind:
		n, err := fv.Int64()
		if err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
		}
		*dst = float64(n)
	case cue.FloatKind:
		f, err := fv.Float64()
		if err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
		}
		*dst = f
	default:
		return &CompileError{Field: field, Message: fmt.Sprintf("%s must be a number", field), Pos: fv.Pos()}
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
