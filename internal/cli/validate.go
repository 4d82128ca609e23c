package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/perftest/internal/corpus"
)

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Path    string `json:"path"`
	Records int    `json:"records"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <corpus>",
		Short: "Check a corpus file without running an engine",
		Long: `Parse every line of a corpus file and report the first malformed record.

No engine is started. Exit code 0 if the corpus is valid, 2 otherwise.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, opts *RootOptions, path string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	records, err := corpus.Source{Path: path}.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return commandError(formatter, ErrCodeCorpusMissing, "corpus not found: "+path, err)
		}
		return outputValidateError(formatter, path, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Path: path, Records: len(records)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s: %d records\n", path, len(records))
	return nil
}

// outputValidateError reports a parse failure with its line number.
func outputValidateError(formatter *OutputFormatter, path string, err error) error {
	var parseErr *corpus.ParseError
	line := 0
	if errors.As(err, &parseErr) {
		line = parseErr.Line
	}

	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeCorpusParse, err.Error(), ValidationResult{Path: path, Line: line})
	}
	return WrapExitError(ExitCommandError, "invalid corpus", err)
}
