package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/perftest/internal/corpus"
	"github.com/roach88/perftest/internal/logging"
	"github.com/roach88/perftest/internal/runid"
	"github.com/roach88/perftest/internal/uci"
)

// Clock supplies wall time for elapsed measurements.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// Config controls a run. The zero value is usable.
type Config struct {
	// PerftTimeout bounds each perft request. Zero means uci.DefaultPerftTimeout.
	PerftTimeout time.Duration

	// HandshakeTimeout bounds the uci/uciok exchange.
	// Zero means uci.DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// FailFast stops at the first failing record; the rest are skipped.
	FailFast bool

	// Clock defaults to SystemClock.
	Clock Clock

	// RunIDs defaults to runid.UUIDv7Generator.
	RunIDs runid.Generator

	// Logger receives run events. Nil discards.
	Logger *slog.Logger

	// Diagnostics receives one line per record as the run proceeds.
	// Nil discards.
	Diagnostics io.Writer

	// OnStep is called after each step is recorded.
	OnStep func(StepResult)
}

// Runner evaluates records against one engine session.
type Runner struct {
	launcher uci.Launcher
	cfg      Config
	logger   *slog.Logger
}

// New creates a runner that starts its engine with launcher.
func New(launcher uci.Launcher, cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.RunIDs == nil {
		cfg.RunIDs = runid.UUIDv7Generator{}
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{launcher: launcher, cfg: cfg, logger: logger}
}

// Run is shorthand for New(launcher, cfg).Run(ctx, records).
func Run(ctx context.Context, records []corpus.Record, launcher uci.Launcher, cfg Config) (*Result, error) {
	return New(launcher, cfg).Run(ctx, records)
}

// Run evaluates records in corpus order through a single engine session.
//
// Setup failures (spawn, handshake) are returned as errors with a nil
// result; no record is evaluated. A failing record never stops the run
// unless FailFast is set. Once the engine faults (timeout or exit) the
// remaining records are skipped, since a run owns exactly one session.
//
// If ctx is canceled mid-run the partial result is returned together with
// the context error.
func (r *Runner) Run(ctx context.Context, records []corpus.Record) (*Result, error) {
	session := uci.NewSession(r.launcher, uci.SessionConfig{
		HandshakeTimeout: r.cfg.HandshakeTimeout,
		PerftTimeout:     r.cfg.PerftTimeout,
		Logger:           r.logger,
	})
	defer func() {
		if err := session.Close(); err != nil {
			r.logger.Warn("close engine", "err", err)
		}
	}()

	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	if err := session.Handshake(ctx); err != nil {
		return nil, err
	}

	result := NewResult(r.cfg.RunIDs.Generate(), r.cfg.Clock.Now(), len(records))
	logger := r.logger.With("run_id", result.RunID)
	logger.Info("run started", "records", len(records))

	var skip Reason
	for _, rec := range records {
		if skip == ReasonNone && ctx.Err() != nil {
			skip = ReasonInterrupted
		}
		if skip != ReasonNone {
			r.record(result, StepResult{Record: rec, Outcome: OutcomeSkip, Reason: skip})
			continue
		}

		fmt.Fprintf(r.cfg.Diagnostics, "EPD line %d -> fen: %s depth: %d nodes: %d\n",
			rec.Line, rec.Position, rec.Depth, rec.Nodes)

		step := r.evaluate(ctx, session, rec)
		r.record(result, step)
		logStep(logger, step)

		switch {
		case step.Reason == ReasonInterrupted:
			skip = ReasonInterrupted
		case session.State() == uci.StateFaulted:
			skip = ReasonEngineFaulted
		case !step.Passed() && r.cfg.FailFast:
			skip = ReasonFailFast
		}
	}

	result.Elapsed = r.cfg.Clock.Now().Sub(result.Started)
	logger.Info("run finished",
		"passed", result.Passed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"elapsed", result.Elapsed,
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("run interrupted: %w", err)
	}
	return result, nil
}

func (r *Runner) evaluate(ctx context.Context, session *uci.Session, rec corpus.Record) StepResult {
	start := r.cfg.Clock.Now()
	reply, err := session.Perft(ctx, rec)
	step := StepResult{Record: rec, Elapsed: r.cfg.Clock.Now().Sub(start)}

	if err != nil {
		step.Outcome = OutcomeFail
		step.Reason = ReasonProcessTerminated
		var perr *uci.PerftError
		if errors.As(err, &perr) {
			step.Output = perr.OutputText()
		}
		switch {
		case ctx.Err() != nil:
			step.Outcome = OutcomeSkip
			step.Reason = ReasonInterrupted
		case errors.Is(err, uci.ErrTimeout):
			step.Reason = ReasonTimeout
		}
		return step
	}

	nodes := reply.Nodes
	step.Actual = &nodes
	step.EngineTimeMs = reply.TimeMs
	if reply.Match {
		step.Outcome = OutcomePass
		return step
	}
	step.Outcome = OutcomeFail
	step.Reason = ReasonMismatch
	step.Output = strings.Join(reply.Output, "\n")
	return step
}

func (r *Runner) record(result *Result, step StepResult) {
	result.Add(step)
	if r.cfg.OnStep != nil {
		r.cfg.OnStep(step)
	}
}

func logStep(logger *slog.Logger, step StepResult) {
	attrs := []any{
		"line", step.Record.Line,
		"depth", step.Record.Depth,
		"expected", step.Record.Nodes,
		"elapsed", step.Elapsed,
	}
	if step.Actual != nil {
		attrs = append(attrs, "actual", *step.Actual)
	}
	if step.Passed() {
		logger.Debug("record passed", attrs...)
		return
	}
	attrs = append(attrs, "reason", step.Reason)
	logger.Warn("record failed", attrs...)
}
