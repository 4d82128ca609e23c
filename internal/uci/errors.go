package uci

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/perftest/internal/corpus"
)

// Sentinel errors for session operations.
var (
	// ErrInvalidState indicates an operation not allowed in the current state.
	ErrInvalidState = errors.New("uci: invalid session state")

	// ErrSessionFaulted indicates the session faulted earlier and cannot be used.
	ErrSessionFaulted = errors.New("uci: session faulted")

	// ErrTimeout indicates the engine did not produce the expected line in time.
	ErrTimeout = errors.New("uci: engine did not answer in time")

	// ErrProcessTerminated indicates the engine exited or closed its output.
	ErrProcessTerminated = errors.New("uci: engine process terminated")

	// ErrEngineClosed indicates a command was sent after Close.
	ErrEngineClosed = errors.New("uci: engine closed")
)

// SpawnError reports an engine binary that could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn engine %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError reports a missing uciok.
type HandshakeError struct {
	// Output holds the engine output seen while waiting.
	Output []string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("uci handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// PerftError reports a perft request that produced no result line.
//
// Kind is ErrTimeout or ErrProcessTerminated. Cause is the underlying
// error (an *expect.Error, or a write error on the engine's stdin).
type PerftError struct {
	Record corpus.Record
	Kind   error
	Cause  error
	Output []string
}

func (e *PerftError) Error() string {
	return fmt.Sprintf("perft %d on line %d: %v: %v", e.Record.Depth, e.Record.Line, e.Kind, e.Cause)
}

func (e *PerftError) Unwrap() []error { return []error{e.Kind, e.Cause} }

// OutputText joins the engine output seen while waiting.
func (e *PerftError) OutputText() string {
	return strings.Join(e.Output, "\n")
}
