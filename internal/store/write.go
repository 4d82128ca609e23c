package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roach88/perftest/internal/harness"
)

// ErrCountOverflow indicates a node count that does not fit SQLite's INTEGER.
var ErrCountOverflow = errors.New("node count exceeds 2^63-1")

// RunMeta describes what a run was executed against.
type RunMeta struct {
	Corpus string
	Engine string
}

// SaveRun writes a run and all of its steps in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - saving the same run twice
// leaves the first copy untouched.
func (s *Store) SaveRun(ctx context.Context, meta RunMeta, result *harness.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, corpus, engine, started_at, elapsed_ns, passed, failed, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		result.RunID,
		meta.Corpus,
		meta.Engine,
		formatTime(result.Started),
		int64(result.Elapsed),
		result.Passed,
		result.Failed,
		result.Skipped,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for seq, step := range result.Steps {
		if err := insertStep(ctx, tx, result.RunID, seq, step); err != nil {
			return fmt.Errorf("save run: step %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run: commit: %w", err)
	}
	return nil
}

func insertStep(ctx context.Context, tx *sql.Tx, runID string, seq int, step harness.StepResult) error {
	expected, err := toInt64(step.Record.Nodes)
	if err != nil {
		return err
	}
	var actual sql.NullInt64
	if step.Actual != nil {
		n, err := toInt64(*step.Actual)
		if err != nil {
			return err
		}
		actual = sql.NullInt64{Int64: n, Valid: true}
	}
	var engineTime sql.NullInt64
	if step.EngineTimeMs != nil {
		engineTime = sql.NullInt64{Int64: *step.EngineTimeMs, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, seq, line, position, depth, expected, actual, outcome, reason, engine_time_ms, elapsed_ns, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		step.Record.Line,
		step.Record.Position,
		step.Record.Depth,
		expected,
		actual,
		string(step.Outcome),
		string(step.Reason),
		engineTime,
		int64(step.Elapsed),
		step.Output,
	)
	return err
}

func toInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrCountOverflow, n)
	}
	return int64(n), nil
}

// timeLayout is fixed width so started_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
