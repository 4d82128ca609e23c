package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/roach88/perftest/internal/logging"
)

const (
	// DefaultCloseGrace is how long Close waits for the engine to exit after quit.
	DefaultCloseGrace = 3 * time.Second

	lineBuffer  = 1024
	maxLineSize = 1 << 20
)

// ProcessConfig describes the engine subprocess.
type ProcessConfig struct {
	// Path is the engine binary.
	Path string

	// Args are passed to the engine verbatim.
	Args []string

	// Dir is the working directory. Defaults to the binary's directory.
	Dir string

	// Mirror receives a copy of the engine's stdout and stderr.
	// Diagnostic only; nil discards.
	Mirror io.Writer

	// CloseGrace bounds the wait for a clean exit after quit.
	// Zero means DefaultCloseGrace.
	CloseGrace time.Duration

	// Logger receives lifecycle events. Nil discards.
	Logger *slog.Logger
}

// Process is an engine running as a child process.
//
// A single reader goroutine scans stdout into a buffered channel. Only the
// owning session writes to stdin, so Send needs no ordering beyond its mutex.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	mirror io.Writer
	grace  time.Duration
	logger *slog.Logger

	lines  chan string
	stopCh chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// Start launches the engine binary with its stdin and stdout piped to the
// harness. The process is killed if ctx is canceled before Close.
//
// Any failure to start returns a *SpawnError.
func Start(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	if cfg.Path == "" {
		return nil, &SpawnError{Path: cfg.Path, Err: errors.New("engine path is required")}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	mirror := cfg.Mirror
	if mirror == nil {
		mirror = io.Discard
	}
	mirror = &lockedWriter{w: mirror}

	// A relative path is evaluated against cmd.Dir, so pin it to the
	// caller's working directory first. Bare names still go through PATH.
	path := cfg.Path
	if strings.ContainsRune(path, filepath.Separator) || strings.Contains(path, "/") {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	cmd := exec.CommandContext(ctx, path, cfg.Args...)
	cmd.Dir = cfg.Dir
	if cmd.Dir == "" && filepath.IsAbs(path) {
		cmd.Dir = filepath.Dir(path)
	}
	cmd.Stderr = mirror

	grace := cfg.CloseGrace
	if grace <= 0 {
		grace = DefaultCloseGrace
	}
	cmd.WaitDelay = grace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Path: cfg.Path, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: cfg.Path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: cfg.Path, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		mirror: mirror,
		grace:  grace,
		logger: logger.With("engine", cfg.Path, "pid", cmd.Process.Pid),
		lines:  make(chan string, lineBuffer),
		stopCh: make(chan struct{}),
	}
	go p.readLoop()

	p.logger.Debug("engine started")
	return p, nil
}

// Lines returns the engine's stdout, one line per element.
// The channel closes when the engine closes its stdout.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Send writes one command line to the engine.
func (p *Process) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrEngineClosed
	}
	p.logger.Debug("send", "command", line)
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

// Close asks the engine to quit, waits up to the grace period, then kills it.
// Pipes are released on every path. Close is idempotent.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		_, _ = io.WriteString(p.stdin, "quit\n")
		_ = p.stdin.Close()
		p.mu.Unlock()

		close(p.stopCh)

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case err := <-done:
			p.logger.Debug("engine exited", "err", err)
		case <-time.After(p.grace):
			p.logger.Warn("engine did not exit in time, killing", "grace", p.grace)
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.closeErr = fmt.Errorf("kill engine: %w", err)
			}
			<-done
		}
		_ = p.stdout.Close()
	})
	return p.closeErr
}

func (p *Process) readLoop() {
	defer close(p.lines)

	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fmt.Fprintln(p.mirror, line)
		select {
		case p.lines <- line:
		case <-p.stopCh:
			// Nobody reads after Close; keep draining so the engine never
			// blocks on a full pipe while it handles quit.
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("engine output ended", "err", err)
	}
}

// lockedWriter serializes writes from the stdout reader and exec's stderr copier.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
