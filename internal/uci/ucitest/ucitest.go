// Package ucitest provides an in-memory engine double for harness tests.
//
// Engine implements uci.Engine and uci.Launcher. Commands are answered
// synchronously from a Script, so tests can model a compliant engine, a wrong
// count, a hung engine, or a crash without a real binary:
//
//	eng := ucitest.New(ucitest.Script{
//	    Counts: map[string]uint64{ucitest.Key(fen, 1): 20},
//	})
//	session := uci.NewSession(eng, uci.SessionConfig{})
package ucitest

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/perftest/internal/uci"
)

// Key identifies a perft request by position and depth.
func Key(position string, depth int) string {
	return position + "|" + strconv.Itoa(depth)
}

// Script describes how the double answers.
type Script struct {
	// SkipHandshake suppresses uciok.
	SkipHandshake bool

	// Banner lines are sent before uciok.
	Banner []string

	// Counts maps Key(position, depth) to the reported node count.
	Counts map[string]uint64

	// Hang lists requests that never get an answer.
	Hang map[string]bool

	// Exit lists requests on which the engine exits without answering.
	Exit map[string]bool

	// Noise lines are emitted before every result line.
	Noise []string

	// LaunchErr makes Launch fail.
	LaunchErr error
}

// Engine is a scripted uci.Engine.
type Engine struct {
	script Script

	mu       sync.Mutex
	lines    chan string
	position string
	sent     []string
	exited   bool
	closed   int
	launched int
}

// New returns an Engine answering from script.
func New(script Script) *Engine {
	return &Engine{
		script: script,
		lines:  make(chan string, 4096),
	}
}

// Launch returns the engine itself, counting invocations.
func (e *Engine) Launch(context.Context) (uci.Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launched++
	if e.script.LaunchErr != nil {
		return nil, e.script.LaunchErr
	}
	return e, nil
}

// Lines implements uci.Engine.
func (e *Engine) Lines() <-chan string {
	return e.lines
}

// Send implements uci.Engine.
func (e *Engine) Send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exited {
		return fmt.Errorf("write %q: %w", line, io.ErrClosedPipe)
	}
	e.sent = append(e.sent, line)

	switch {
	case line == uci.CmdUCI:
		for _, b := range e.script.Banner {
			e.lines <- b
		}
		if !e.script.SkipHandshake {
			e.lines <- uci.TokenOK
		}
	case strings.HasPrefix(line, "position fen "):
		e.position = strings.TrimPrefix(line, "position fen ")
	case strings.HasPrefix(line, "perft "):
		e.answerPerft(line)
	case line == "quit":
		e.exit()
	}
	return nil
}

func (e *Engine) answerPerft(line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}
	depth, err := strconv.Atoi(fields[1])
	if err != nil {
		return
	}
	key := Key(e.position, depth)
	if e.script.Exit[key] {
		e.exit()
		return
	}
	if e.script.Hang[key] {
		return
	}
	nodes, ok := e.script.Counts[key]
	if !ok {
		return
	}
	for _, n := range e.script.Noise {
		e.lines <- n
	}
	e.lines <- fmt.Sprintf("depth:%d;time:%d;nodes:%d;nps:0", depth, depth, nodes)
}

func (e *Engine) exit() {
	if !e.exited {
		e.exited = true
		close(e.lines)
	}
}

// Close implements uci.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	e.exit()
	return nil
}

// Sent returns the commands received so far.
func (e *Engine) Sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sent...)
}

// Launches returns how many times Launch was called.
func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launched
}

// Closed reports whether Close was called at least once.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed > 0
}
