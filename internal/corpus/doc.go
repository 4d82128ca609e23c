// Package corpus parses EPD-style perft corpora.
//
// A corpus is a line-oriented text file. Each meaningful line pairs a board
// position with a search depth and the ground-truth perft node count at that
// depth:
//
//	rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1 4 197281
//
// # Line Classification
//
// Lines are classified in order:
//
//   - Empty lines are skipped.
//   - Lines starting with '#' are comments and are skipped.
//   - Every other line must match `^(.*) \d+ \d+$`. The leading group is the
//     position; the two trailing integers are depth and expected nodes. Any
//     integers between the position and the trailing pair (the FEN halfmove
//     and fullmove counters, for instance) stay inside the position.
//
// A line that matches none of the above is a *ParseError. Parse errors are
// fatal for a run: a malformed corpus is a setup bug, not a test failure, so
// Load returns either every record or none.
//
// The position is opaque to this package. It is never checked for chess
// legality; that is the engine's job.
package corpus
