// Package expect waits for patterns in a line-oriented output stream.
//
// Expect is the only place the harness blocks on the engine. It drains lines
// from a Source until one matches, the timeout elapses, the stream closes, or
// the context is done. Every drained line is consumed: output preceding a
// match is discarded so the next expectation starts from a clean position.
package expect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sentinel errors for failed expectations.
var (
	// ErrMatchTimeout indicates the pattern did not appear within the timeout.
	ErrMatchTimeout = errors.New("expect: timed out waiting for pattern")

	// ErrStreamClosed indicates the stream ended before the pattern appeared.
	ErrStreamClosed = errors.New("expect: stream closed before pattern appeared")
)

// Source is a stream of output lines.
// The channel is closed at end of input (the producing process exited).
type Source interface {
	Lines() <-chan string
}

// Pattern decides whether a line satisfies an expectation.
type Pattern interface {
	Match(line string) bool
	String() string
}

type containsPattern string

func (p containsPattern) Match(line string) bool { return strings.Contains(line, string(p)) }
func (p containsPattern) String() string         { return fmt.Sprintf("contains %q", string(p)) }

type exactPattern string

func (p exactPattern) Match(line string) bool { return strings.TrimSpace(line) == string(p) }
func (p exactPattern) String() string         { return fmt.Sprintf("equals %q", string(p)) }

type regexpPattern struct{ re *regexp.Regexp }

func (p regexpPattern) Match(line string) bool { return p.re.MatchString(line) }
func (p regexpPattern) String() string         { return fmt.Sprintf("matches /%s/", p.re) }

// Contains matches lines containing s as a substring.
func Contains(s string) Pattern { return containsPattern(s) }

// Exact matches lines equal to s, ignoring surrounding whitespace.
func Exact(s string) Pattern { return exactPattern(s) }

// Regexp matches lines matched by re.
func Regexp(re *regexp.Regexp) Pattern { return regexpPattern{re: re} }

// Match is a satisfied expectation.
type Match struct {
	// Line is the line that matched.
	Line string

	// Consumed holds every line drained by this call, the match included.
	Consumed []string
}

// Error is a failed expectation.
// It wraps ErrMatchTimeout, ErrStreamClosed, or a context error.
type Error struct {
	Pattern  string
	Timeout  time.Duration
	Consumed []string
	Err      error
}

func (e *Error) Error() string {
	if errors.Is(e.Err, ErrMatchTimeout) {
		return fmt.Sprintf("%v after %s (pattern %s, %d line(s) seen)", e.Err, e.Timeout, e.Pattern, len(e.Consumed))
	}
	return fmt.Sprintf("%v (pattern %s, %d line(s) seen)", e.Err, e.Pattern, len(e.Consumed))
}

func (e *Error) Unwrap() error { return e.Err }

// Output joins the lines consumed before the failure.
func (e *Error) Output() string {
	return strings.Join(e.Consumed, "\n")
}

// Expect blocks until a line from src matches p.
//
// A timeout <= 0 waits until the stream closes or ctx is done.
func Expect(ctx context.Context, src Source, p Pattern, timeout time.Duration) (Match, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	lines := src.Lines()
	var consumed []string
	fail := func(err error) (Match, error) {
		return Match{}, &Error{Pattern: p.String(), Timeout: timeout, Consumed: consumed, Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-deadline:
			return fail(ErrMatchTimeout)
		case line, ok := <-lines:
			if !ok {
				return fail(ErrStreamClosed)
			}
			consumed = append(consumed, line)
			if p.Match(line) {
				return Match{Line: line, Consumed: consumed}, nil
			}
		}
	}
}
