package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/perftest/internal/config"
	"github.com/roach88/perftest/internal/corpus"
	"github.com/roach88/perftest/internal/export"
	"github.com/roach88/perftest/internal/harness"
	"github.com/roach88/perftest/internal/logging"
	"github.com/roach88/perftest/internal/report"
	"github.com/roach88/perftest/internal/store"
	"github.com/roach88/perftest/internal/uci"
)

// perftFlags are the run flags. Each one overrides the config file only
// when given on the command line.
type perftFlags struct {
	engine           string
	engineArgs       []string
	timeout          time.Duration
	handshakeTimeout time.Duration
	failFast         bool
	quiet            bool
	db               string
	parquet          string
}

func (f *perftFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.engine, "engine", "", "engine binary (default <exe dir>/"+config.DefaultEngine+")")
	fl.StringArrayVar(&f.engineArgs, "engine-arg", nil, "argument passed to the engine (repeatable)")
	fl.DurationVar(&f.timeout, "timeout", uci.DefaultPerftTimeout, "time limit per perft request")
	fl.DurationVar(&f.handshakeTimeout, "handshake-timeout", uci.DefaultHandshakeTimeout, "time limit for the uci handshake")
	fl.BoolVar(&f.failFast, "fail-fast", false, "skip the remaining records after the first failure")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress engine output and progress lines")
	fl.StringVar(&f.db, "db", "", "SQLite database to record the run in")
	fl.StringVar(&f.parquet, "parquet", "", "write per-record results to this Parquet file")
}

// resolveConfig layers defaults, the config file, flags and the positional
// corpus argument, in that order.
func resolveConfig(cmd *cobra.Command, opts *RootOptions, f *perftFlags, args []string) (config.Config, error) {
	base := opts.BaseDir
	if base == "" {
		dir, err := config.BaseDir()
		if err != nil {
			return config.Config{}, err
		}
		base = dir
	}
	cfg := config.Defaults(base)

	path := opts.ConfigPath
	if path == "" {
		if found, ok := config.Discover(opts.ConfigDir); ok {
			path = found
		}
	}
	if path != "" {
		loaded, err := config.Load(path, cfg)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("engine") {
		cfg.Engine = f.engine
	}
	if changed("engine-arg") {
		cfg.EngineArgs = f.engineArgs
	}
	if changed("timeout") {
		cfg.PerftTimeout = f.timeout
	}
	if changed("handshake-timeout") {
		cfg.HandshakeTimeout = f.handshakeTimeout
	}
	if changed("fail-fast") {
		cfg.FailFast = f.failFast
	}
	if changed("quiet") {
		cfg.Quiet = f.quiet
	}
	if changed("db") {
		cfg.Database = f.db
	}
	if changed("parquet") {
		cfg.Parquet = f.parquet
	}
	if changed("format") {
		cfg.Format = opts.Format
	}
	if len(args) > 0 {
		cfg.Corpus = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runPerft(cmd *cobra.Command, opts *RootOptions, f *perftFlags, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(cmd, opts, f, args)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "invalid configuration", err)
	}
	formatter.Format = cfg.Format

	logger := logging.New(formatter.GetErrWriter(), logging.Options{
		Verbose:    opts.Verbose,
		JSON:       cfg.Format == "json",
		Timestamps: cfg.Format == "json",
	})

	records, err := corpus.Source{Path: cfg.Corpus}.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return commandError(formatter, ErrCodeCorpusMissing, "corpus not found: "+cfg.Corpus, err)
		}
		return commandError(formatter, ErrCodeCorpusParse, "invalid corpus", err)
	}
	formatter.VerboseLog("Loaded %d records from %s", len(records), cfg.Corpus)

	// Text mode interleaves engine output, diagnostics and step lines on
	// stdout. JSON mode keeps stdout for the single response, so step lines
	// and diagnostics go to stderr and engine output is dropped.
	var mirror, progress io.Writer = io.Discard, io.Discard
	if !cfg.Quiet {
		switch cfg.Format {
		case "text":
			mirror = &syncWriter{w: formatter.Writer}
			progress = mirror
		case "json":
			progress = &syncWriter{w: formatter.GetErrWriter()}
		}
	}

	launcher := opts.Launch(uci.ProcessConfig{
		Path:   cfg.Engine,
		Args:   cfg.EngineArgs,
		Mirror: mirror,
		Logger: logger,
	})

	result, err := harness.Run(ctx, records, launcher, harness.Config{
		PerftTimeout:     cfg.PerftTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		FailFast:         cfg.FailFast,
		Clock:            opts.Clock,
		RunIDs:           opts.RunIDs,
		Logger:           logger,
		Diagnostics:      progress,
		OnStep: func(step harness.StepResult) {
			_ = report.WriteStep(progress, step)
		},
	})
	if result == nil {
		return setupError(ctx, formatter, cfg, err)
	}
	interrupted := err != nil

	sinkErr := persist(context.WithoutCancel(ctx), logger, cfg, result)

	if err := render(formatter, result, interrupted, sinkErr); err != nil {
		return WrapExitError(ExitCommandError, "writing report", err)
	}

	switch {
	case sinkErr != nil:
		return WrapExitError(ExitCommandError, sinkErr.message, sinkErr.err)
	case interrupted:
		return WrapExitError(ExitFailure, "interrupted", err)
	case !result.OK():
		return NewExitError(ExitFailure, report.SummaryLine(result))
	}
	return nil
}

// setupError maps a failed start or handshake to an exit code.
func setupError(ctx context.Context, formatter *OutputFormatter, cfg config.Config, err error) error {
	var (
		spawnErr     *uci.SpawnError
		handshakeErr *uci.HandshakeError
	)
	switch {
	case ctx.Err() != nil:
		_ = emitError(formatter, ErrCodeInterrupted, "interrupted before the run started", nil)
		return WrapExitError(ExitFailure, "interrupted", err)
	case errors.As(err, &spawnErr):
		return commandError(formatter, ErrCodeSpawn, "failed to start engine "+cfg.Engine, err)
	case errors.As(err, &handshakeErr):
		var details any
		if len(handshakeErr.Output) > 0 {
			details = map[string][]string{"output": handshakeErr.Output}
		}
		_ = emitError(formatter, ErrCodeHandshake, handshakeErr.Error(), details)
		return WrapExitError(ExitCommandError, "engine handshake failed", err)
	default:
		return commandError(formatter, ErrCodeSpawn, "engine setup failed", err)
	}
}

// render writes the run report. A sink failure takes the place of the run
// verdict in the JSON envelope; the summary is still reported as data.
func render(formatter *OutputFormatter, result *harness.Result, interrupted bool, sinkErr *sinkError) error {
	if formatter.Format != "json" {
		return report.WriteText(formatter.Writer, result)
	}

	summary := report.NewSummary(result)
	var cliErr *CLIError
	switch {
	case sinkErr != nil:
		cliErr = &CLIError{Code: sinkErr.code, Message: sinkErr.message, Details: sinkErr.err.Error()}
	case interrupted:
		cliErr = &CLIError{
			Code:    ErrCodeInterrupted,
			Message: fmt.Sprintf("run interrupted: %d failed, %d skipped", result.Failed, result.Skipped),
		}
	case !result.OK():
		cliErr = &CLIError{
			Code:    ErrCodeRunFailed,
			Message: fmt.Sprintf("%d failed, %d skipped", result.Failed, result.Skipped),
		}
	}

	resp := CLIResponse{Status: "ok", Data: summary, RunID: result.RunID}
	if cliErr != nil {
		resp.Status = "error"
		resp.Error = cliErr
	}
	return writeJSON(formatter.Writer, resp)
}

// sinkError is a failure to record or export a finished run.
type sinkError struct {
	code    string
	message string
	err     error
}

// persist records the run in the configured sinks and stops at the first
// failure.
func persist(ctx context.Context, logger *slog.Logger, cfg config.Config, result *harness.Result) *sinkError {
	if cfg.Database != "" {
		if err := saveRun(ctx, cfg, result); err != nil {
			logger.Error("record run", "db", cfg.Database, "err", err)
			return &sinkError{code: ErrCodeStore, message: "recording run in " + cfg.Database, err: err}
		}
		logger.Debug("run recorded", "db", cfg.Database, "run_id", result.RunID)
	}
	if cfg.Parquet != "" {
		if err := export.WriteParquet(cfg.Parquet, result); err != nil {
			logger.Error("export run", "parquet", cfg.Parquet, "err", err)
			return &sinkError{code: ErrCodeExport, message: "exporting run to " + cfg.Parquet, err: err}
		}
		logger.Debug("run exported", "parquet", cfg.Parquet, "rows", result.Total())
	}
	return nil
}

func saveRun(ctx context.Context, cfg config.Config, result *harness.Result) error {
	s, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRun(ctx, store.RunMeta{Corpus: cfg.Corpus, Engine: cfg.Engine}, result)
}

// commandError reports a setup failure and returns exit code 2.
// In text mode the caller prints the returned error.
func commandError(formatter *OutputFormatter, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	_ = emitError(formatter, code, message, details)
	return WrapExitError(ExitCommandError, message, err)
}

// emitError writes the error envelope in JSON mode. Text mode stays silent.
func emitError(formatter *OutputFormatter, code, message string, details any) error {
	if formatter.Format != "json" {
		return nil
	}
	return formatter.Error(code, message, details)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// syncWriter serializes writes from the engine reader and the run loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
