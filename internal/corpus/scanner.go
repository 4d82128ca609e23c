package corpus

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
)

// maxLineSize bounds a single corpus line. FEN strings are short; this only
// guards against feeding a binary file by mistake.
const maxLineSize = 1 << 20

// Scanner reads records lazily from a corpus stream.
//
// Usage mirrors bufio.Scanner:
//
//	sc := corpus.NewScanner(r)
//	for sc.Scan() {
//	    rec := sc.Record()
//	}
//	if err := sc.Err(); err != nil { ... }
//
// Scanning stops at the first parse or read error. A Scanner makes a single
// pass; re-reading the corpus needs a new reader.
type Scanner struct {
	lines  *bufio.Scanner
	lineNo int
	record Record
	err    error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Scanner{lines: lines}
}

// Scan advances to the next record, skipping blank and comment lines.
// Returns false at end of input or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.lines.Scan() {
		s.lineNo++
		rec, ok, err := ParseLine(s.lineNo, s.lines.Text())
		if err != nil {
			s.err = err
			return false
		}
		if ok {
			s.record = rec
			return true
		}
	}
	if err := s.lines.Err(); err != nil {
		s.err = fmt.Errorf("read corpus line %d: %w", s.lineNo+1, err)
	}
	return false
}

// Record returns the record produced by the last successful Scan.
func (s *Scanner) Record() Record {
	return s.record
}

// Err returns the first error encountered, or nil at clean end of input.
func (s *Scanner) Err() error {
	return s.err
}

// Records returns a lazy sequence over the records in r.
// The sequence yields a non-nil error at most once, as its last element.
func Records(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		sc := NewScanner(r)
		for sc.Scan() {
			if !yield(sc.Record(), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(Record{}, err)
		}
	}
}

// Source is a resolved corpus file.
type Source struct {
	// Path is the corpus file path as resolved by the caller.
	Path string
}

// Load parses the corpus at s.Path.
// See the package-level Load for semantics.
func (s Source) Load() ([]Record, error) {
	return Load(s.Path)
}

// Load reads and parses a whole corpus file.
//
// Either every record is returned or none: a single malformed line yields a
// *ParseError and a nil slice. A missing file yields an error wrapping
// fs.ErrNotExist.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	records := []Record{}
	for rec, err := range Records(f) {
		if err != nil {
			return nil, fmt.Errorf("parse corpus %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
