package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/perftest/internal/harness"
	"github.com/roach88/perftest/internal/runid"
	"github.com/roach88/perftest/internal/uci"
)

// RootOptions holds global flags for all commands, plus the seams the
// commands use to reach the outside world.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Launch builds the engine launcher. Defaults to uci.ProcessLauncher.
	Launch func(uci.ProcessConfig) uci.Launcher

	// BaseDir anchors the default engine and corpus paths.
	// Empty means the directory of the running executable.
	BaseDir string

	// ConfigDir is searched for a config file when --config is not given.
	// Empty means the working directory.
	ConfigDir string

	Clock  harness.Clock
	RunIDs runid.Generator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the perftest command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Launch == nil {
		opts.Launch = uci.ProcessLauncher
	}
	if opts.ConfigDir == "" {
		opts.ConfigDir = "."
	}

	flags := &perftFlags{}
	cmd := &cobra.Command{
		Use:   "perftest [corpus]",
		Short: "Test perft against a list of FEN positions",
		Long: `Test perft against a list of FEN positions.

Each corpus line holds a position, a depth and the expected node count:

  rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1 5 4865609

Every record is sent to one engine session over its standard input and the
reported node count is compared exactly against the expected one.

Exit codes:
  0  every record passed
  1  at least one record failed or was skipped
  2  setup error (configuration, corpus, engine start or handshake)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerft(cmd, opts, flags, args)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .toml)")

	flags.register(cmd)

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
