package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/touchdelay/internal/ir"
	"github.com/roach88/touchdelay/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	ScopeID  string
}

// TraceResult holds the journal timeline of one scope.
type TraceResult struct {
	ScopeID  string          `json:"scope_id"`
	Timeline []ir.FlushEntry `json:"timeline"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Passes  int `json:"passes"`
	Groups  int `json:"groups"`
	Records int `json:"records"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the flush journal of a scope",
		Long: `Show every bulk update a scope's flush wrote, in journal order.

Each entry names the flush pass, the record type, the stamped columns,
the record ids and the timestamp written. Passes after the first were
caused by cascading touches from hooks.

Examples:
  touchdelay trace --db ./touch.db --scope 0190a3c4-...
  touchdelay trace --db ./touch.db --scope 0190a3c4-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: config database)")
	cmd.Flags().StringVar(&opts.ScopeID, "scope", "", "scope id to trace (required)")
	_ = cmd.MarkFlagRequired("scope")

	return cmd
}

// openJournal opens an existing database for reading the journal.
// dbFlag wins over the config file.
func openJournal(opts *RootOptions, dbFlag string) (*store.Store, error) {
	path := dbFlag
	if path == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Database
	}
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path, nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := openJournal(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ReadFlushes(ctx, opts.ScopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		ScopeID:  opts.ScopeID,
		Timeline: entries,
	}
	if result.Timeline == nil {
		result.Timeline = []ir.FlushEntry{}
	}
	for _, e := range entries {
		result.Stats.Groups++
		result.Stats.Records += len(e.RecordIDs)
		if e.Pass > result.Stats.Passes {
			result.Stats.Passes = e.Pass
		}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{
			Status:  "ok",
			Data:    result,
			ScopeID: opts.ScopeID,
		})
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(w, "No journal entries for scope: %s\n", opts.ScopeID)
		return nil
	}
	outputTraceText(w, result, opts.Verbose)
	return nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Scope: %s\n", result.ScopeID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	pass := 0
	for _, e := range result.Timeline {
		if e.Pass != pass {
			pass = e.Pass
			fmt.Fprintf(w, "  pass %d\n", pass)
		}
		fmt.Fprintf(w, "    [%d] %s %s <- %s\n",
			e.Seq, e.RecordType, strings.Join(e.RecordIDs, ","), strings.Join(e.Columns, ","))
		if verbose {
			fmt.Fprintf(w, "         at %s\n", e.StampedAt.Format(time.RFC3339Nano))
			if e.AttrKey != "" {
				fmt.Fprintf(w, "         attrs %s\n", e.AttrKey)
			}
			fmt.Fprintf(w, "         id %s\n", truncateID(e.ID))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Passes:  %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Groups:  %d\n", result.Stats.Groups)
	fmt.Fprintf(w, "  Records: %d\n", result.Stats.Records)
}

// truncateID shortens a content hash for display.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
