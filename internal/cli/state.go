package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dyneval/internal/expr"
	"github.com/roach88/dyneval/internal/statedb"
)

// StateOptions holds flags shared by the state subcommands.
type StateOptions struct {
	*RootOptions
	Path string
}

// StateEntry is one stored state value.
type StateEntry struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // "float" | "string"
	Value any    `json:"value"`
}

// NewStateCommand creates the state command and its subcommands.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Edit the persisted state snapshot",
		Long: `Edit the state snapshot read by "dyneval evaluate --state".

Values that parse as numbers are stored as floats, anything else as
strings.

Examples:
  dyneval state set steps=750 name=Ana --state ./state.db
  dyneval state get steps --state ./state.db
  dyneval state rm name --state ./state.db
  dyneval state list --state ./state.db`,
	}
	cmd.PersistentFlags().StringVar(&opts.Path, "state", "", "path to state snapshot (required)")
	_ = cmd.MarkPersistentFlagRequired("state")

	cmd.AddCommand(&cobra.Command{
		Use:           "set <key=value>...",
		Short:         "Store state values",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateSet(opts, args, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "get <key>",
		Short:         "Print a state value",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateGet(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "rm <key>...",
		Short:         "Remove state values",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateRemove(opts, args, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List state values",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateList(opts, cmd)
		},
	})

	return cmd
}

func openState(opts *StateOptions) (*statedb.DB, error) {
	db, err := statedb.Open(opts.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state snapshot", err)
	}
	return db, nil
}

func runStateSet(opts *StateOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	entries := make([]StateEntry, 0, len(args))
	values := make(map[string]expr.Value, len(args))
	for _, a := range args {
		key, v, err := parseAssignment(a)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid assignment", err)
		}
		values[key] = v
		entries = append(entries, stateEntry(key, v))
	}

	db, err := openState(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, e := range entries {
		if err := db.Put(e.Key, values[e.Key]); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to store %q", e.Key), err)
		}
		formatter.VerboseLog("stored %s", e.Key)
	}

	if formatter.IsJSON() {
		return formatter.Success(entries)
	}
	fmt.Fprintf(formatter.Writer, "✓ Stored %d value(s)\n", len(entries))
	return nil
}

func runStateGet(opts *StateOptions, key string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	db, err := openState(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.Get(key)
	if errors.Is(err, statedb.ErrNoSuchKey) {
		msg := fmt.Sprintf("no state value %q", key)
		if err := formatter.Error(ErrCodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %q", key), err)
	}

	if formatter.IsJSON() {
		return formatter.Success(stateEntry(key, v))
	}
	fmt.Fprintln(formatter.Writer, v)
	return nil
}

func runStateRemove(opts *StateOptions, keys []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	db, err := openState(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, key := range keys {
		if err := db.Delete(key); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to remove %q", key), err)
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(map[string]any{"removed": keys})
	}
	fmt.Fprintf(formatter.Writer, "✓ Removed %d key(s)\n", len(keys))
	return nil
}

func runStateList(opts *StateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	db, err := openState(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	values, err := db.All()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read state", err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	entries := make([]StateEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, stateEntry(k, values[k]))
	}

	if formatter.IsJSON() {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No state values.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%s = %v (%s)\n", e.Key, e.Value, e.Type)
	}
	return nil
}

func stateEntry(key string, v expr.Value) StateEntry {
	switch v := v.(type) {
	case expr.Float:
		return StateEntry{Key: key, Type: "float", Value: float32(v)}
	case expr.String:
		return StateEntry{Key: key, Type: "string", Value: string(v)}
	}
	return StateEntry{Key: key, Type: fmt.Sprintf("%T", v)}
}
