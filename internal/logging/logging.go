// Package logging builds the structured logger shared by every component.
//
// Components take a *slog.Logger; the handler behind it is a
// charmbracelet/log logger so terminal output is colored and aligned,
// with a JSON formatter for machine consumption.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	// Verbose enables debug records (protocol traffic, per-record passes).
	Verbose bool

	// JSON switches to one JSON object per record.
	JSON bool

	// Timestamps adds a time field to every record.
	Timestamps bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := log.InfoLevel
	if opts.Verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "perftest",
		ReportTimestamp: opts.Timestamps,
		TimeFormat:      time.RFC3339,
	})
	if opts.JSON {
		handler.SetFormatter(log.JSONFormatter)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(log.New(io.Discard))
}
