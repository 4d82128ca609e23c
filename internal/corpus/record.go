package corpus

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CommentPrefix marks a comment line.
const CommentPrefix = "#"

// recordRe captures the longest leading prefix followed by two integers.
// The greedy group keeps intermediate integers inside the position.
var recordRe = regexp.MustCompile(`^(.*) ([0-9]+) ([0-9]+)$`)

// Record is one perft test case.
// Records are immutable once parsed.
type Record struct {
	// Position is the board position in FEN notation, exactly as written.
	Position string `json:"position"`

	// Depth is the perft depth. Always >= 1.
	Depth int `json:"depth"`

	// Nodes is the ground-truth node count at Depth.
	Nodes uint64 `json:"nodes"`

	// Line is the 1-based line number in the corpus file.
	Line int `json:"line"`
}

// String returns a short description used in diagnostics.
func (r Record) String() string {
	return fmt.Sprintf("line %d: %s depth %d nodes %d", r.Line, r.Position, r.Depth, r.Nodes)
}

// ParseError reports a corpus line that does not match the record grammar.
type ParseError struct {
	// Line is the 1-based line number.
	Line int

	// Text is the raw line content.
	Text string

	// Reason optionally narrows down why the line was rejected.
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("line %d: malformed record: %q", e.Line, e.Text)
}

// ParseLine classifies a single corpus line.
//
// Returns ok=false with a nil error for blank and comment lines, a record
// with ok=true for valid record lines, and a *ParseError otherwise.
// A trailing carriage return is ignored so CRLF corpora parse the same.
func ParseLine(lineNo int, text string) (Record, bool, error) {
	text = strings.TrimSuffix(text, "\r")

	if text == "" {
		return Record{}, false, nil
	}
	if strings.HasPrefix(text, CommentPrefix) {
		return Record{}, false, nil
	}

	m := recordRe.FindStringSubmatch(text)
	if m == nil {
		return Record{}, false, &ParseError{Line: lineNo, Text: text}
	}

	position := m[1]
	if position == "" {
		return Record{}, false, &ParseError{Line: lineNo, Text: text, Reason: "empty position"}
	}

	depth, err := strconv.Atoi(m[2])
	if err != nil {
		return Record{}, false, &ParseError{Line: lineNo, Text: text, Reason: "depth out of range"}
	}
	if depth < 1 {
		return Record{}, false, &ParseError{Line: lineNo, Text: text, Reason: "depth must be at least 1"}
	}

	nodes, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return Record{}, false, &ParseError{Line: lineNo, Text: text, Reason: "node count out of range"}
	}

	return Record{
		Position: position,
		Depth:    depth,
		Nodes:    nodes,
		Line:     lineNo,
	}, true, nil
}
