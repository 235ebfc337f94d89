package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dyneval/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Records []string                   `json:"records,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <records-dir>",
		Short: "Compile and validate records",
		Long: `Compile every record declared in a CUE package and check it.

Reports unknown kinds, ranged bounds, unknown operators, time fields and
platform keys, empty state keys, negative fraction digits and duplicate
record names. All problems are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, recordsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, loadErr := LoadRecords(recordsDir)
	if loadErr != nil {
		if err := formatter.Error(loadErr.Code, loadErr.Error(), nil); err != nil {
			return err
		}
		return WrapExitError(ExitCommandError, "failed to load records", loadErr)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, recordsDir)
	for _, name := range loaded.Names() {
		formatter.VerboseLog("Validating record: %s", name)
	}

	errs := compiler.ValidateAll(loaded.Records)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	return outputValidateSuccess(formatter, loaded.Names())
}

func outputValidateSuccess(f *OutputFormatter, names []string) error {
	if f.IsJSON() {
		return f.Success(ValidationResult{Valid: true, Records: names})
	}
	fmt.Fprintf(f.Writer, "✓ All records valid (%d)\n", len(names))
	return nil
}

func outputValidationErrors(f *OutputFormatter, errs []compiler.ValidationError) error {
	if f.IsJSON() {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: fmt.Sprintf("%d validation error(s)", len(errs)),
			},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ %d validation error(s)\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(f.Writer, "  [%s] %s: %s\n", e.Code, e.Field, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
}
