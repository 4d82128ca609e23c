package uci

import (
	"context"

	"github.com/roach88/perftest/internal/expect"
)

// Engine is a line-oriented connection to an engine under test.
//
// Lines delivers engine output one line at a time and is closed when the
// engine's output ends. Send writes one command line; the newline is added
// by the implementation.
type Engine interface {
	expect.Source
	Send(line string) error
	Close() error
}

// Launcher creates the engine for a session.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Engine, error)

// Launch calls f(ctx).
func (f LauncherFunc) Launch(ctx context.Context) (Engine, error) {
	return f(ctx)
}

// ProcessLauncher returns a Launcher that starts cfg as a subprocess.
func ProcessLauncher(cfg ProcessConfig) Launcher {
	return LauncherFunc(func(ctx context.Context) (Engine, error) {
		return Start(ctx, cfg)
	})
}
