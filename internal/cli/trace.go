package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dyneval/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database     string
	Subscription string // optional - show one subscription's emissions
}

// TraceEvent is one emission in a subscription timeline.
type TraceEvent struct {
	Seq     int64           `json:"seq"`
	ID      string          `json:"id"`
	Invalid bool            `json:"invalid"`
	Record  json.RawMessage `json:"record"`
}

// TraceStats holds summary statistics for a subscription.
type TraceStats struct {
	Emissions int `json:"emissions"`
	Invalid   int `json:"invalid"`
}

// TraceResult holds one subscription and its timeline.
type TraceResult struct {
	Subscription store.Subscription `json:"subscription"`
	Timeline     []TraceEvent       `json:"timeline"`
	Stats        TraceStats         `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded subscriptions",
		Long: `Inspect the trace log written by "dyneval evaluate --db".

Without --subscription, lists every recorded subscription in start order.
With --subscription, prints that subscription's emissions by sequence.

Examples:
  dyneval trace --db ./trace.db
  dyneval trace --db ./trace.db --subscription 0192f1d2-...
  dyneval trace --db ./trace.db --subscription 0192f1d2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Subscription, "subscription", "", "subscription id to show")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Subscription == "" {
		subs, err := st.ListSubscriptions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list subscriptions", err)
		}
		if formatter.IsJSON() {
			return formatter.Success(subs)
		}
		outputSubscriptionsText(formatter.Writer, subs)
		return nil
	}

	sub, err := st.ReadSubscription(ctx, opts.Subscription)
	if errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("no subscription %q", opts.Subscription)
		if err := formatter.Error(ErrCodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read subscription", err)
	}

	ems, err := st.ReadEmissions(ctx, sub.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read emissions", err)
	}

	result := buildTraceResult(sub, ems)
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result)
	return nil
}

func buildTraceResult(sub store.Subscription, ems []store.Emission) TraceResult {
	result := TraceResult{
		Subscription: sub,
		Timeline:     make([]TraceEvent, 0, len(ems)),
	}
	for _, em := range ems {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:     em.Seq,
			ID:      em.ID,
			Invalid: em.Invalid,
			Record:  json.RawMessage(em.Record),
		})
		result.Stats.Emissions++
		if em.Invalid {
			result.Stats.Invalid++
		}
	}
	return result
}

func outputSubscriptionsText(w io.Writer, subs []store.Subscription) {
	if len(subs) == 0 {
		fmt.Fprintln(w, "No subscriptions recorded.")
		return
	}
	for _, sub := range subs {
		fmt.Fprintf(w, "%6d  %s  %s\n", sub.StartedSeq, sub.ID, sub.RecordName)
	}
}

func outputTraceText(w io.Writer, result TraceResult) {
	sub := result.Subscription
	fmt.Fprintf(w, "Subscription: %s\n", sub.ID)
	fmt.Fprintf(w, "Record: %s (%s)\n", sub.RecordName, sub.RecordHash)
	fmt.Fprintf(w, "Started: seq %d\n\n", sub.StartedSeq)

	fmt.Fprintln(w, "Timeline:")
	for _, ev := range result.Timeline {
		if ev.Invalid {
			fmt.Fprintf(w, "  [%d] INVALID\n", ev.Seq)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, ev.Record)
	}
	fmt.Fprintf(w, "\nStats: %d emission(s), %d invalid\n", result.Stats.Emissions, result.Stats.Invalid)
}
