package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kind     string // optional filter
}

// TraceResult holds the event log dump.
type TraceResult struct {
	Events []record.Event `json:"events"`
	Stats  TraceStats     `json:"stats"`
}

// TraceStats summarizes the dumped log.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	LastSeq     int64          `json:"last_seq"`
}

// NewTraceCommand creates the trace command: dump the durable event log.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Dump the handled-event log",
		Long: `Dump the durable event log in handling order.

Every handled event is recorded with its logical clock value, kind, and
a deterministic detail payload, so two runs over the same inputs produce
the same trace.

Examples:
  offworker trace --db ./offworker.db
  offworker trace --db ./offworker.db --kind push --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreOpen, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.ReadEvents(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read event log", err)
	}

	result := TraceResult{
		Events: []record.Event{},
		Stats:  TraceStats{ByKind: map[string]int{}},
	}
	for _, ev := range events {
		if opts.Kind != "" && string(ev.Kind) != opts.Kind {
			continue
		}
		result.Events = append(result.Events, ev)
		result.Stats.TotalEvents++
		result.Stats.ByKind[string(ev.Kind)]++
		if ev.Seq > result.Stats.LastSeq {
			result.Stats.LastSeq = ev.Seq
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if result.Stats.TotalEvents == 0 {
		fmt.Fprintln(formatter.Writer, "No events.")
		return nil
	}
	for _, ev := range result.Events {
		fmt.Fprintf(formatter.Writer, "%6d  %-18s %s\n", ev.Seq, ev.Kind, ev.ID)
	}
	fmt.Fprintf(formatter.Writer, "\n%d event(s), last seq %d\n",
		result.Stats.TotalEvents, result.Stats.LastSeq)
	return nil
}
