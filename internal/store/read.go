package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/perftest/internal/corpus"
	"github.com/roach88/perftest/internal/harness"
)

// ErrRunNotFound indicates no run with the requested ID exists.
var ErrRunNotFound = errors.New("run not found")

// Run is a stored run summary.
type Run struct {
	ID      string        `json:"id"`
	Corpus  string        `json:"corpus"`
	Engine  string        `json:"engine"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
}

// OK reports whether every record of the run passed.
func (r Run) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Total returns the number of records in the run.
func (r Run) Total() int {
	return r.Passed + r.Failed + r.Skipped
}

const runColumns = `id, corpus, engine, started_at, elapsed_ns, passed, failed, skipped`

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id COLLATE BINARY DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns the run with the given ID, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ReadSteps returns the steps of a run in corpus order.
//
// Returns an empty slice (not nil) if the run has no steps.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]harness.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line, position, depth, expected, actual, outcome, reason, engine_time_ms, elapsed_ns, output
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []harness.StepResult{}
	for rows.Next() {
		var (
			step       harness.StepResult
			rec        corpus.Record
			expected   int64
			actual     sql.NullInt64
			engineTime sql.NullInt64
			outcome    string
			reason     string
			elapsed    int64
		)
		if err := rows.Scan(&rec.Line, &rec.Position, &rec.Depth, &expected, &actual,
			&outcome, &reason, &engineTime, &elapsed, &step.Output); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.Nodes = uint64(expected)
		step.Record = rec
		step.Outcome = harness.Outcome(outcome)
		step.Reason = harness.Reason(reason)
		step.Elapsed = time.Duration(elapsed)
		if actual.Valid {
			n := uint64(actual.Int64)
			step.Actual = &n
		}
		if engineTime.Valid {
			ms := engineTime.Int64
			step.EngineTimeMs = &ms
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		started string
		elapsed int64
	)
	if err := row.Scan(&run.ID, &run.Corpus, &run.Engine, &started, &elapsed,
		&run.Passed, &run.Failed, &run.Skipped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	run.Started = t
	run.Elapsed = time.Duration(elapsed)
	return run, nil
}
