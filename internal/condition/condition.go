// Package condition provides the stock evaluators rules are built from.
//
// Labels are compared after Unicode NFC normalization and case folding,
// so "Open_Palm" and "open_palm" name the same gesture.
package condition

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/latch/internal/engine"
	"github.com/roach88/latch/internal/ir"
)

// Normalize returns the comparison key for a gesture label.
func Normalize(label string) string {
	// A Caser carries state, so each call gets its own.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(label)))
}

// LabelEvaluator yields the frame confidence when the frame label matches.
type LabelEvaluator struct {
	label string
	key   string
}

// Label returns an evaluator for a single gesture label.
func Label(label string) *LabelEvaluator {
	return &LabelEvaluator{label: label, key: Normalize(label)}
}

func (e *LabelEvaluator) ID() string {
	return "label:" + e.label
}

func (e *LabelEvaluator) Evaluate(frame ir.SensorFrame) float64 {
	if Normalize(frame.Label) == e.key {
		return frame.Confidence
	}
	return 0
}

// AnyLabelEvaluator matches any label of a set.
type AnyLabelEvaluator struct {
	labels []string
	keys   map[string]bool
}

// AnyLabel returns an evaluator matching any of labels.
func AnyLabel(labels ...string) *AnyLabelEvaluator {
	keys := make(map[string]bool, len(labels))
	for _, l := range labels {
		keys[Normalize(l)] = true
	}
	return &AnyLabelEvaluator{labels: slices.Clone(labels), keys: keys}
}

func (e *AnyLabelEvaluator) ID() string {
	return "any_label:" + strings.Join(e.labels, "|")
}

func (e *AnyLabelEvaluator) Evaluate(frame ir.SensorFrame) float64 {
	if e.keys[Normalize(frame.Label)] {
		return frame.Confidence
	}
	return 0
}

// ExtraEvaluator reads a confidence from the frame extras.
//
// Integer values are basis points (0..10000). A boolean true reads as 1.
// Anything else, including a missing key, reads as 0.
type ExtraEvaluator struct {
	key string
}

// Extra returns an evaluator over frame.Extras[key].
func Extra(key string) *ExtraEvaluator {
	return &ExtraEvaluator{key: key}
}

func (e *ExtraEvaluator) ID() string {
	return "extra:" + e.key
}

func (e *ExtraEvaluator) Evaluate(frame ir.SensorFrame) float64 {
	switch v := frame.Extras[e.key].(type) {
	case ir.IRInt:
		return ir.FromBasisPoints(int64(v))
	case ir.IRBool:
		if v {
			return 1
		}
	}
	return 0
}

// FromSpec builds the evaluator a declarative condition describes.
func FromSpec(spec ir.ConditionSpec) (engine.Evaluator, error) {
	switch spec.Kind {
	case ir.ConditionLabel:
		if spec.Label == "" {
			return nil, fmt.Errorf("condition %q: label is required", spec.Kind)
		}
		return Label(spec.Label), nil
	case ir.ConditionAnyLabel:
		if len(spec.Labels) == 0 {
			return nil, fmt.Errorf("condition %q: labels must not be empty", spec.Kind)
		}
		return AnyLabel(spec.Labels...), nil
	case ir.ConditionExtra:
		if spec.Key == "" {
			return nil, fmt.Errorf("condition %q: key is required", spec.Kind)
		}
		return Extra(spec.Key), nil
	default:
		return nil, fmt.Errorf("unknown condition kind %q", spec.Kind)
	}
}

// SpecOf returns the declarative form of a stock evaluator.
// Returns false for evaluators built outside this package.
func SpecOf(e engine.Evaluator) (ir.ConditionSpec, bool) {
	switch v := e.(type) {
	case *LabelEvaluator:
		return ir.ConditionSpec{Kind: ir.ConditionLabel, Label: v.label}, true
	case *AnyLabelEvaluator:
		return ir.ConditionSpec{Kind: ir.ConditionAnyLabel, Labels: slices.Clone(v.labels)}, true
	case *ExtraEvaluator:
		return ir.ConditionSpec{Kind: ir.ConditionExtra, Key: v.key}, true
	default:
		return ir.ConditionSpec{}, false
	}
}
