package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/latch/internal/ir"
)

// TraceSnapshot is the golden form of a run. Transition and session ids
// are left out so a golden file survives id scheme changes; seq, time,
// cause and states are what the lifecycle guarantees.
type TraceSnapshot struct {
	ScenarioName string
	Entity       string
	FinalState   ir.StateID
	Trace        []ir.Transition
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which
// only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, t := range s.Trace {
		entry := map[string]any{
			"seq":   t.Seq,
			"t":     t.TimestampMs,
			"cause": string(t.Cause),
			"from":  string(t.From),
			"to":    string(t.To),
		}
		if t.RuleID != "" {
			entry["rule"] = t.RuleID
		}
		trace[i] = entry
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"entity":        s.Entity,
		"final_state":   string(s.FinalState),
		"trace":         trace,
	}
}

// MarshalTrace renders result as canonical golden JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Entity:       result.Entity,
		FinalState:   result.FinalState,
		Trace:        result.Transitions,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
