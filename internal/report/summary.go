package report

import (
	"github.com/roach88/perftest/internal/harness"
)

// Summary is the machine-readable form of a run.
type Summary struct {
	RunID     string    `json:"run_id"`
	OK        bool      `json:"ok"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Total     int       `json:"total"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Failures  []Failure `json:"failures"`
}

// Failure describes a record that did not pass.
type Failure struct {
	Line     int             `json:"line"`
	Position string          `json:"position"`
	Depth    int             `json:"depth"`
	Expected uint64          `json:"expected"`
	Actual   *uint64         `json:"actual,omitempty"`
	Outcome  harness.Outcome `json:"outcome"`
	Reason   harness.Reason  `json:"reason"`
	Output   string          `json:"output,omitempty"`
}

// NewSummary builds the summary of result.
func NewSummary(result *harness.Result) Summary {
	s := Summary{
		RunID:     result.RunID,
		OK:        result.OK(),
		Passed:    result.Passed,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Total:     result.Total(),
		ElapsedMs: result.Elapsed.Milliseconds(),
		Failures:  []Failure{},
	}
	for _, step := range result.Failures() {
		s.Failures = append(s.Failures, Failure{
			Line:     step.Record.Line,
			Position: step.Record.Position,
			Depth:    step.Record.Depth,
			Expected: step.Record.Nodes,
			Actual:   step.Actual,
			Outcome:  step.Outcome,
			Reason:   step.Reason,
			Output:   step.Output,
		})
	}
	return s
}
