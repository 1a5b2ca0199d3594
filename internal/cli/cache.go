package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumenhq/offworker/internal/store"
)

// CacheOptions holds flags shared by the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Database string
}

// NewCacheCommand creates the cache command group: inspect and clean the
// offline cache buckets.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean cache buckets",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newCacheListCommand(opts))
	cmd.AddCommand(newCacheEntriesCommand(opts))
	cmd.AddCommand(newCachePurgeCommand(opts))
	return cmd
}

// BucketInfo is one bucket in the list output.
type BucketInfo struct {
	Name       string `json:"name"`
	Current    bool   `json:"current"`
	CreatedSeq int64  `json:"created_seq"`
	Entries    int    `json:"entries"`
}

// EntryInfo is one cached response in the entries output.
type EntryInfo struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	Bytes       int    `json:"bytes"`
	ContentHash string `json:"content_hash"`
	Seq         int64  `json:"seq"`
}

func newCacheListCommand(opts *CacheOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List cache buckets",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st *store.Store, formatter *OutputFormatter) error {
				ctx := cmd.Context()
				buckets, err := st.ListBuckets(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list buckets", err)
				}

				infos := make([]BucketInfo, 0, len(buckets))
				for _, b := range buckets {
					entries, err := st.ListEntries(ctx, b.Name)
					if err != nil {
						return WrapExitError(ExitFailure, "failed to list entries", err)
					}
					infos = append(infos, BucketInfo{
						Name:       b.Name,
						Current:    b.Current,
						CreatedSeq: b.CreatedSeq,
						Entries:    len(entries),
					})
				}

				if formatter.Format == "json" {
					return formatter.Success(infos)
				}
				if len(infos) == 0 {
					fmt.Fprintln(formatter.Writer, "No buckets.")
					return nil
				}
				for _, info := range infos {
					marker := " "
					if info.Current {
						marker = "*"
					}
					fmt.Fprintf(formatter.Writer, "%s %s (%d entries)\n", marker, info.Name, info.Entries)
				}
				return nil
			}, cmd)
		},
	}
}

func newCacheEntriesCommand(opts *CacheOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "entries <bucket>",
		Short:         "List cached responses in a bucket",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st *store.Store, formatter *OutputFormatter) error {
				entries, err := st.ListEntries(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list entries", err)
				}

				infos := make([]EntryInfo, 0, len(entries))
				for _, e := range entries {
					infos = append(infos, EntryInfo{
						URL:         e.URL,
						Status:      e.Status,
						Bytes:       len(e.Body),
						ContentHash: e.ContentHash,
						Seq:         e.Seq,
					})
				}

				if formatter.Format == "json" {
					return formatter.Success(infos)
				}
				if len(infos) == 0 {
					fmt.Fprintln(formatter.Writer, "No entries.")
					return nil
				}
				for _, info := range infos {
					fmt.Fprintf(formatter.Writer, "%3d %8dB %s\n", info.Status, info.Bytes, info.URL)
				}
				return nil
			}, cmd)
		},
	}
}

func newCachePurgeCommand(opts *CacheOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge <keep-bucket>",
		Short:         "Delete every bucket except the named one",
		Long:          "Delete every bucket except the named one, the same cleanup activation performs.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st *store.Store, formatter *OutputFormatter) error {
				stale, err := st.DeleteBucketsExcept(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to purge buckets", err)
				}
				if formatter.Format == "json" {
					if stale == nil {
						stale = []string{}
					}
					return formatter.Success(map[string]any{"deleted": stale})
				}
				if len(stale) == 0 {
					fmt.Fprintln(formatter.Writer, "Nothing to purge.")
					return nil
				}
				for _, name := range stale {
					fmt.Fprintf(formatter.Writer, "deleted %s\n", name)
				}
				return nil
			}, cmd)
		},
	}
}

// withStore opens the database, builds a formatter, runs fn, and closes.
func withStore(opts *CacheOptions, fn func(*store.Store, *OutputFormatter) error, cmd *cobra.Command) error {
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

	return fn(st, formatter)
}
