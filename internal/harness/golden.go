package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/lumenhq/offworker/internal/record"
)

// TraceSnapshot captures a scenario's canonical trace for golden
// comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []record.Event
}

// toCanonicalMap converts the snapshot into the map form that
// record.MarshalCanonical accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		eventMap := map[string]any{
			"id":   ev.ID,
			"kind": string(ev.Kind),
			"seq":  ev.Seq,
		}
		if len(ev.Detail) > 0 {
			eventMap["detail"] = ev.Detail
		}
		traceList[i] = eventMap
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario, checks its assertions, and compares
// the canonical trace against testdata/golden/{name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	defer result.Close()

	for _, err := range Check(scenario, result) {
		t.Error(err)
	}

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Trace:        result.Trace,
	}
	traceJSON, err := record.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}
