package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/touchdelay/internal/ir"
)

// ScopesOptions holds flags for the scopes command.
type ScopesOptions struct {
	*RootOptions
	Database string
}

// ScopeResult describes one journaled scope.
type ScopeResult struct {
	ScopeID  string  `json:"scope_id"`
	Passes   int     `json:"passes"`
	Groups   int     `json:"groups"`
	FirstSeq int64   `json:"first_seq"`
	Intact   bool    `json:"intact"`
	Mismatch []int64 `json:"mismatch,omitempty"` // seqs of entries whose id does not match their content
}

// ScopesResult holds the overall scopes listing.
type ScopesResult struct {
	Scopes      []ScopeResult `json:"scopes"`
	TotalScopes int           `json:"total_scopes"`
	AllIntact   bool          `json:"all_intact"`
}

// NewScopesCommand creates the scopes command.
func NewScopesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScopesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List journaled scopes and verify entry ids",
		Long: `List every scope in the flush journal with its pass and group counts.

Each journal entry id is recomputed from the entry's content; a scope
is intact when every id matches.

Exit codes:
  0 - All entries intact
  1 - One or more entries do not match their id
  2 - Command error (database not found, etc.)

Examples:
  touchdelay scopes --db ./touch.db
  touchdelay scopes --db ./touch.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScopes(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: config database)")

	return cmd
}

func runScopes(opts *ScopesOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := openJournal(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	summaries, err := st.ListScopes(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scopes", err)
	}

	result := ScopesResult{
		Scopes:      make([]ScopeResult, 0, len(summaries)),
		TotalScopes: len(summaries),
		AllIntact:   true,
	}
	for _, sum := range summaries {
		entries, err := st.ReadFlushes(ctx, sum.ScopeID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read scope %s", sum.ScopeID), err)
		}

		scope := ScopeResult{
			ScopeID:  sum.ScopeID,
			Passes:   sum.Passes,
			Groups:   sum.Groups,
			FirstSeq: sum.FirstSeq,
			Intact:   true,
		}
		for _, e := range entries {
			id, err := ir.FlushEntryID(e)
			if err != nil || id != e.ID {
				scope.Intact = false
				scope.Mismatch = append(scope.Mismatch, e.Seq)
			}
		}
		if !scope.Intact {
			result.AllIntact = false
		}
		result.Scopes = append(result.Scopes, scope)
	}

	return outputScopes(opts, cmd, result)
}

func outputScopes(opts *ScopesOptions, cmd *cobra.Command, result ScopesResult) error {
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.AllIntact {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "E_JOURNAL_MISMATCH",
				Message: "journal entries do not match their ids",
			}
		}
		if err := writeJSON(w, response); err != nil {
			return err
		}
	} else {
		if len(result.Scopes) == 0 {
			fmt.Fprintln(w, "No scopes found in database.")
			return nil
		}
		for _, s := range result.Scopes {
			mark := "\u2713"
			if !s.Intact {
				mark = "\u2717"
			}
			fmt.Fprintf(w, "%s %s  passes=%d groups=%d first_seq=%d\n", mark, s.ScopeID, s.Passes, s.Groups, s.FirstSeq)
			for _, seq := range s.Mismatch {
				fmt.Fprintf(w, "    entry seq %d does not match its id\n", seq)
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d scope(s)\n", result.TotalScopes)
	}

	if !result.AllIntact {
		return NewExitError(ExitFailure, "journal entries do not match their ids")
	}
	return nil
}
