package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/latch/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It carries the full transition list to help debug the failure.
type AssertionError struct {
	Type        string
	Expected    string
	Actual      string
	Transitions []ir.Transition
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nTransitions:\n")
	if len(e.Transitions) == 0 {
		fmt.Fprintf(&buf, "  (none)\n")
	}
	for _, t := range e.Transitions {
		fmt.Fprintf(&buf, "  [%d] t=%d %s -> %s (%s", t.Seq, t.TimestampMs, t.From, t.To, t.Cause)
		if t.RuleID != "" {
			fmt.Fprintf(&buf, " %s", t.RuleID)
		}
		buf.WriteString(")\n")
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// the failure messages. Evaluation continues past a failure so one run
// reports everything that is wrong.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(result, a)
	case AssertTransitionOrder:
		return assertTransitionOrder(result.Transitions, a)
	case AssertTransitionCount:
		return assertTransitionCount(result.Transitions, a)
	case AssertStateAt:
		return assertStateAt(result, a)
	case AssertDwell:
		return assertDwell(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFinalState(result *Result, a Assertion) error {
	want, err := ir.ParseStateID(a.State)
	if err != nil {
		return err
	}
	if result.FinalState != want {
		return &AssertionError{
			Type:        AssertFinalState,
			Expected:    string(want),
			Actual:      string(result.FinalState),
			Transitions: result.Transitions,
		}
	}
	return nil
}

func assertStateAt(result *Result, a Assertion) error {
	want, err := ir.ParseStateID(a.State)
	if err != nil {
		return err
	}
	if got := result.StateAt(*a.At); got != want {
		return &AssertionError{
			Type:        AssertStateAt,
			Expected:    fmt.Sprintf("%s at t=%d", want, *a.At),
			Actual:      string(got),
			Transitions: result.Transitions,
		}
	}
	return nil
}

// assertTransitionOrder checks that the listed transitions appear in
// order. They need not be consecutive.
func assertTransitionOrder(transitions []ir.Transition, a Assertion) error {
	pos := 0
	for _, pair := range a.Transitions {
		from, to, err := parsePair(pair)
		if err != nil {
			return err
		}
		found := false
		for pos < len(transitions) {
			t := transitions[pos]
			pos++
			if t.From == from && t.To == to {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:        AssertTransitionOrder,
				Expected:    fmt.Sprintf("transitions in order: %v", a.Transitions),
				Actual:      fmt.Sprintf("%s not found after the previous match", pair),
				Transitions: transitions,
			}
		}
	}
	return nil
}

func assertTransitionCount(transitions []ir.Transition, a Assertion) error {
	var to ir.StateID
	if a.To != "" {
		parsed, err := ir.ParseStateID(a.To)
		if err != nil {
			return err
		}
		to = parsed
	}

	count := 0
	for _, t := range transitions {
		if a.Cause != "" && string(t.Cause) != a.Cause {
			continue
		}
		if a.Rule != "" && t.RuleID != a.Rule {
			continue
		}
		if to != "" && t.To != to {
			continue
		}
		count++
	}

	if count != *a.Count {
		return &AssertionError{
			Type:        AssertTransitionCount,
			Expected:    fmt.Sprintf("%d transitions matching %s", *a.Count, describeFilter(a)),
			Actual:      fmt.Sprintf("%d transitions", count),
			Transitions: transitions,
		}
	}
	return nil
}

func assertDwell(result *Result, a Assertion) error {
	got, ok := result.Dwells[a.Rule]
	if !ok {
		return &AssertionError{
			Type:     AssertDwell,
			Expected: fmt.Sprintf("rule %s registered", a.Rule),
			Actual:   "rule not registered",
		}
	}
	if got != *a.Ms {
		return &AssertionError{
			Type:        AssertDwell,
			Expected:    fmt.Sprintf("%s dwell %dms", a.Rule, *a.Ms),
			Actual:      fmt.Sprintf("%dms", got),
			Transitions: result.Transitions,
		}
	}
	return nil
}

// parsePair parses "FROM->TO".
func parsePair(pair string) (ir.StateID, ir.StateID, error) {
	fromStr, toStr, ok := strings.Cut(pair, "->")
	if !ok {
		return "", "", fmt.Errorf("transition %q: expected FROM->TO", pair)
	}
	from, err := ir.ParseStateID(fromStr)
	if err != nil {
		return "", "", fmt.Errorf("transition %q: %w", pair, err)
	}
	to, err := ir.ParseStateID(toStr)
	if err != nil {
		return "", "", fmt.Errorf("transition %q: %w", pair, err)
	}
	return from, to, nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Cause != "" {
		parts = append(parts, "cause="+a.Cause)
	}
	if a.Rule != "" {
		parts = append(parts, "rule="+a.Rule)
	}
	if a.To != "" {
		parts = append(parts, "to="+a.To)
	}
	if len(parts) == 0 {
		return "(any)"
	}
	return strings.Join(parts, " ")
}
