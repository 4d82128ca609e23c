// Package report renders perft run results for people and machines.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/perftest/internal/harness"
)

// maxOutputLines caps the engine output quoted per failure.
const maxOutputLines = 10

var printer = message.NewPrinter(language.English)

// Count formats a node count with thousands separators.
func Count(n uint64) string {
	return printer.Sprintf("%d", n)
}

// WriteStep writes the one-line verdict for a step as the run proceeds.
func WriteStep(w io.Writer, step harness.StepResult) error {
	rec := step.Record
	var err error
	switch step.Outcome {
	case harness.OutcomePass:
		_, err = fmt.Fprintf(w, "PASS line %d depth %d nodes %s\n", rec.Line, rec.Depth, Count(rec.Nodes))
	case harness.OutcomeSkip:
		_, err = fmt.Fprintf(w, "SKIP line %d depth %d (%s)\n", rec.Line, rec.Depth, step.Reason)
	default:
		if step.Actual != nil {
			_, err = fmt.Fprintf(w, "FAIL line %d depth %d expected %s got %s (%s)\n",
				rec.Line, rec.Depth, Count(rec.Nodes), Count(*step.Actual), step.Reason)
		} else {
			_, err = fmt.Fprintf(w, "FAIL line %d depth %d expected %s (%s)\n",
				rec.Line, rec.Depth, Count(rec.Nodes), step.Reason)
		}
	}
	return err
}

// WriteText writes the end-of-run report: every record that did not pass,
// then the summary line.
func WriteText(w io.Writer, result *harness.Result) error {
	var b strings.Builder

	if failures := result.Failures(); len(failures) > 0 {
		fmt.Fprintf(&b, "Failed records (%d):\n", len(failures))
		for _, step := range failures {
			writeFailure(&b, step)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\n", SummaryLine(result))
	_, err := io.WriteString(w, b.String())
	return err
}

// SummaryLine returns "N passed, M failed, K skipped, T total in <elapsed>".
func SummaryLine(result *harness.Result) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped, %d total in %s",
		result.Passed, result.Failed, result.Skipped, result.Total(),
		result.Elapsed.Round(time.Millisecond))
}

func writeFailure(b *strings.Builder, step harness.StepResult) {
	rec := step.Record
	fmt.Fprintf(b, "\n  EPD line %d: %s\n", rec.Line, step.Outcome)
	fmt.Fprintf(b, "    fen:      %s\n", rec.Position)
	fmt.Fprintf(b, "    depth:    %d\n", rec.Depth)
	fmt.Fprintf(b, "    expected: %s\n", Count(rec.Nodes))
	if step.Actual != nil {
		fmt.Fprintf(b, "    actual:   %s\n", Count(*step.Actual))
	}
	fmt.Fprintf(b, "    reason:   %s\n", step.Reason)

	if step.Output == "" {
		return
	}
	lines := strings.Split(step.Output, "\n")
	if len(lines) > maxOutputLines {
		fmt.Fprintf(b, "    output (last %d of %d lines):\n", maxOutputLines, len(lines))
		lines = lines[len(lines)-maxOutputLines:]
	} else {
		b.WriteString("    output:\n")
	}
	for _, l := range lines {
		fmt.Fprintf(b, "      | %s\n", l)
	}
}
