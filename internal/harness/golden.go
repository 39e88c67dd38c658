package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/formsync/internal/ir"
)

// TraceSnapshot captures the complete trace and final state of a scenario.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string          `json:"scenario_name"`
	Session      string          `json:"session,omitempty"`
	Trace        []TraceEvent    `json:"trace"`
	State        []FieldSnapshot `json:"state"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		muts := make([]any, len(event.Mutations))
		for j, m := range event.Mutations {
			muts[j] = map[string]any{
				"reaction": m.Reaction,
				"field":    m.Field,
				"attr":     m.Attr,
				"value":    m.Value,
			}
		}
		eventMap := map[string]any{
			"seq":       event.Seq,
			"kind":      event.Kind,
			"source":    event.Source,
			"payload":   event.Payload,
			"mutations": muts,
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}

	stateList := make([]any, len(s.State))
	for i, st := range s.State {
		stateList[i] = map[string]any{
			"field":        st.Field,
			"value":        st.Value,
			"enabled":      st.Enabled,
			"required":     st.Required,
			"reload_count": st.ReloadCount,
		}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"state":         stateList,
	}
	if s.Session != "" {
		result["session"] = s.Session
	}
	return result
}

// Snapshot renders a result as canonical JSON.
func Snapshot(name, session string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Session:      session,
		Trace:        result.Trace,
		State:        result.State,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	data, err := Snapshot(scenario.Name, scenario.Session, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, "", result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
