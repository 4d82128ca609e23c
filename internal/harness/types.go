package harness

import (
	"time"

	"github.com/roach88/perftest/internal/corpus"
)

// Outcome is the verdict for one record.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"

	// OutcomeSkip marks a record that was never sent to the engine.
	// Skipped records count against the run.
	OutcomeSkip Outcome = "skip"
)

// Reason explains a non-passing outcome.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonMismatch          Reason = "node_count_mismatch"
	ReasonTimeout           Reason = "timeout"
	ReasonProcessTerminated Reason = "process_terminated"

	// Skip reasons.
	ReasonEngineFaulted Reason = "engine_faulted"
	ReasonFailFast      Reason = "fail_fast"
	ReasonInterrupted   Reason = "interrupted"
)

// StepResult is the outcome of one record. Produced once, never mutated.
type StepResult struct {
	Record  corpus.Record `json:"record"`
	Outcome Outcome       `json:"outcome"`
	Reason  Reason        `json:"reason,omitempty"`

	// Actual is the engine-reported node count, nil if the engine never answered.
	Actual *uint64 `json:"actual,omitempty"`

	// EngineTimeMs is the search time reported on the result line, if any.
	EngineTimeMs *int64 `json:"engine_time_ms,omitempty"`

	// Output is the engine output observed while waiting, kept for failures.
	Output string `json:"output,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Passed reports whether the step passed.
func (s StepResult) Passed() bool {
	return s.Outcome == OutcomePass
}

// Result is the outcome of a perft run.
type Result struct {
	RunID   string        `json:"run_id"`
	Steps   []StepResult  `json:"steps"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// NewResult creates an empty result for runID.
func NewResult(runID string, started time.Time, capacity int) *Result {
	return &Result{
		RunID:   runID,
		Steps:   make([]StepResult, 0, capacity),
		Started: started,
	}
}

// Add appends a step and updates the counters.
func (r *Result) Add(step StepResult) {
	r.Steps = append(r.Steps, step)
	switch step.Outcome {
	case OutcomePass:
		r.Passed++
	case OutcomeFail:
		r.Failed++
	case OutcomeSkip:
		r.Skipped++
	}
}

// Total returns the number of evaluated or skipped records.
func (r *Result) Total() int {
	return len(r.Steps)
}

// OK reports whether every record passed.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Failures returns the steps that did not pass, in corpus order.
func (r *Result) Failures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.Passed() {
			out = append(out, s)
		}
	}
	return out
}
