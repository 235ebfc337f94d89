package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dyneval/internal/ir"
	"github.com/roach88/dyneval/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dyneval CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dyneval",
		Short: "dyneval - dynamic complication data evaluator",
		Long: `Evaluate complication-style data records whose fields are bound to
live expressions over state, time and platform sensors.`,
		Version:       fmt.Sprintf("%s (record schema v%s)", ir.EngineVersion, ir.RecordVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			logger := telemetry.SetupLogger(cmd.ErrOrStderr(), telemetry.LoggerOptions{Verbose: opts.Verbose})
			cmd.SetContext(telemetry.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))

	return cmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loggerFor returns the logger installed by the root command, or a fresh one
// on the command's stderr when the command runs on its own.
func loggerFor(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	if ctx := cmd.Context(); ctx != nil {
		if logger, ok := telemetry.LoggerFrom(ctx); ok {
			return logger
		}
	}
	return telemetry.NewLogger(cmd.ErrOrStderr(), telemetry.LoggerOptions{Verbose: opts.Verbose})
}
