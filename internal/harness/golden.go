package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the stable projection of a Result used for golden comparison.
// Timing fields are left out so snapshots do not depend on the clock.
type Snapshot struct {
	RunID   string         `json:"run_id"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Skipped int            `json:"skipped"`
	Steps   []StepSnapshot `json:"steps"`
}

// StepSnapshot is the stable projection of a StepResult.
type StepSnapshot struct {
	Line     int     `json:"line"`
	Depth    int     `json:"depth"`
	Expected uint64  `json:"expected"`
	Actual   *uint64 `json:"actual,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Reason   Reason  `json:"reason,omitempty"`
}

// NewSnapshot projects result.
func NewSnapshot(result *Result) Snapshot {
	s := Snapshot{
		RunID:   result.RunID,
		Passed:  result.Passed,
		Failed:  result.Failed,
		Skipped: result.Skipped,
		Steps:   make([]StepSnapshot, len(result.Steps)),
	}
	for i, step := range result.Steps {
		s.Steps[i] = StepSnapshot{
			Line:     step.Record.Line,
			Depth:    step.Record.Depth,
			Expected: step.Record.Nodes,
			Actual:   step.Actual,
			Outcome:  step.Outcome,
			Reason:   step.Reason,
		}
	}
	return s
}

// AssertGolden compares result against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := json.MarshalIndent(NewSnapshot(result), "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
