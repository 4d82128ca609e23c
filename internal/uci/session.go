package uci

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/roach88/perftest/internal/corpus"
	"github.com/roach88/perftest/internal/expect"
	"github.com/roach88/perftest/internal/logging"
)

// Protocol constants.
const (
	CmdUCI  = "uci"
	TokenOK = "uciok"

	// DefaultHandshakeTimeout bounds the wait for uciok.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultPerftTimeout bounds the wait for a perft result. Deep perft runs
	// legitimately take tens of seconds on slow hardware; the bound only
	// catches hung or crashed engines.
	DefaultPerftTimeout = 60 * time.Second
)

var (
	resultRe = regexp.MustCompile(`\bnodes:([0-9]+)`)
	timeRe   = regexp.MustCompile(`\btime:([0-9]+)`)
)

// SessionConfig configures protocol timeouts.
type SessionConfig struct {
	// HandshakeTimeout bounds the uci/uciok exchange.
	// Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// PerftTimeout bounds each perft request.
	// Zero means DefaultPerftTimeout.
	PerftTimeout time.Duration

	// Logger receives protocol events. Nil discards.
	Logger *slog.Logger
}

// PerftReply is the engine's answer to a perft request.
type PerftReply struct {
	// Nodes is the node count reported by the engine.
	Nodes uint64

	// Match reports whether Nodes equals the record's expected count.
	Match bool

	// TimeMs is the engine-reported search time, if present.
	TimeMs *int64

	// Line is the result line.
	Line string

	// Output holds every line drained for this request.
	Output []string
}

// Session runs the perft protocol against one engine.
//
// A Session is used by a single goroutine: every request is sent and its
// response consumed before the next request starts.
type Session struct {
	launcher Launcher
	engine   Engine
	cfg      SessionConfig
	logger   *slog.Logger
	state    State
}

// NewSession returns an unstarted session that launches its engine with l.
func NewSession(l Launcher, cfg SessionConfig) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PerftTimeout <= 0 {
		cfg.PerftTimeout = DefaultPerftTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		launcher: l,
		cfg:      cfg,
		logger:   logger,
		state:    StateUnstarted,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Start launches the engine.
// A launch failure faults the session and is returned as-is (usually a
// *SpawnError).
func (s *Session) Start(ctx context.Context) error {
	if err := s.require(StateUnstarted); err != nil {
		return err
	}
	engine, err := s.launcher.Launch(ctx)
	if err != nil {
		s.state = StateFaulted
		return err
	}
	s.engine = engine
	s.transition(StateSpawned)
	return nil
}

// Handshake sends uci and waits for uciok.
func (s *Session) Handshake(ctx context.Context) error {
	if err := s.require(StateSpawned); err != nil {
		return err
	}
	if err := s.engine.Send(CmdUCI); err != nil {
		s.fault("handshake send failed", err)
		return &HandshakeError{Err: fmt.Errorf("%w: %v", ErrProcessTerminated, err)}
	}

	m, err := expect.Expect(ctx, s.engine, expect.Contains(TokenOK), s.cfg.HandshakeTimeout)
	if err != nil {
		var expErr *expect.Error
		var output []string
		if errors.As(err, &expErr) {
			output = expErr.Consumed
		}
		s.fault("handshake failed", err)
		return &HandshakeError{Output: output, Err: err}
	}

	s.logger.Debug("handshake complete", "lines", len(m.Consumed))
	s.transition(StateHandshakeComplete)
	return nil
}

// Perft sets the record's position and requests a perft count.
//
// The result line is the first line containing nodes:<count>. A reported
// count that differs from the expectation is not an error: the reply carries
// Match=false and the session stays ready. A missing result is a
// *PerftError and faults the session.
func (s *Session) Perft(ctx context.Context, rec corpus.Record) (PerftReply, error) {
	if s.state == StateFaulted {
		return PerftReply{}, ErrSessionFaulted
	}
	if s.state != StateReady && s.state != StateHandshakeComplete {
		return PerftReply{}, fmt.Errorf("%w: perft in state %s", ErrInvalidState, s.state)
	}

	if err := s.engine.Send("position fen " + rec.Position); err != nil {
		s.fault("position send failed", err)
		return PerftReply{}, &PerftError{Record: rec, Kind: ErrProcessTerminated, Cause: err}
	}
	if err := s.engine.Send(fmt.Sprintf("perft %d tt", rec.Depth)); err != nil {
		s.fault("perft send failed", err)
		return PerftReply{}, &PerftError{Record: rec, Kind: ErrProcessTerminated, Cause: err}
	}
	s.transition(StateAwaitingResponse)

	m, err := expect.Expect(ctx, s.engine, expect.Regexp(resultRe), s.cfg.PerftTimeout)
	if err != nil {
		kind := ErrProcessTerminated
		if errors.Is(err, expect.ErrMatchTimeout) {
			kind = ErrTimeout
		}
		var expErr *expect.Error
		var output []string
		if errors.As(err, &expErr) {
			output = expErr.Consumed
		}
		s.fault("perft failed", err)
		return PerftReply{}, &PerftError{Record: rec, Kind: kind, Cause: err, Output: output}
	}

	reply, err := parseResult(m)
	if err != nil {
		s.fault("unreadable perft result", err)
		return PerftReply{}, &PerftError{Record: rec, Kind: ErrProcessTerminated, Cause: err, Output: m.Consumed}
	}
	reply.Match = reply.Nodes == rec.Nodes
	s.transition(StateReady)

	s.logger.Debug("perft result",
		"line", rec.Line,
		"depth", rec.Depth,
		"expected", rec.Nodes,
		"actual", reply.Nodes,
	)
	return reply, nil
}

// Close releases the engine. Safe to call in any state and more than once.
func (s *Session) Close() error {
	if s.state.Terminal() {
		return nil
	}
	s.state = StateClosed
	if s.engine == nil {
		return nil
	}
	return s.engine.Close()
}

func (s *Session) require(want State) error {
	if s.state == StateFaulted {
		return ErrSessionFaulted
	}
	if s.state != want {
		return fmt.Errorf("%w: in state %s, want %s", ErrInvalidState, s.state, want)
	}
	return nil
}

func (s *Session) transition(to State) {
	if !CanTransition(s.state, to) {
		panic(fmt.Sprintf("uci: illegal transition %s -> %s", s.state, to))
	}
	s.state = to
}

// fault moves to Faulted and releases the engine immediately.
func (s *Session) fault(msg string, err error) {
	s.logger.Warn(msg, "state", s.state, "err", err)
	s.state = StateFaulted
	if s.engine != nil {
		if closeErr := s.engine.Close(); closeErr != nil {
			s.logger.Warn("close after fault", "err", closeErr)
		}
	}
}

func parseResult(m expect.Match) (PerftReply, error) {
	sub := resultRe.FindStringSubmatch(m.Line)
	if sub == nil {
		return PerftReply{}, fmt.Errorf("no node count in %q", m.Line)
	}
	nodes, err := strconv.ParseUint(sub[1], 10, 64)
	if err != nil {
		return PerftReply{}, fmt.Errorf("node count in %q: %w", m.Line, err)
	}
	reply := PerftReply{Nodes: nodes, Line: m.Line, Output: m.Consumed}
	if t := timeRe.FindStringSubmatch(m.Line); t != nil {
		if ms, err := strconv.ParseInt(t[1], 10, 64); err == nil {
			reply.TimeMs = &ms
		}
	}
	return reply, nil
}
