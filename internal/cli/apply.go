package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/touchdelay/internal/compiler"
	"github.com/roach88/touchdelay/internal/config"
	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/harness"
	"github.com/roach88/touchdelay/internal/redisstore"
	"github.com/roach88/touchdelay/internal/store"
	"github.com/roach88/touchdelay/internal/workload"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database  string
	Backend   string
	RedisAddr string
	SchemaDir string
	MaxPasses int
}

// ApplyResult summarizes one workload run against a database.
type ApplyResult struct {
	Workload    string   `json:"workload"`
	Backend     string   `json:"backend"`
	Scopes      []string `json:"scopes"`
	BulkUpdates int      `json:"bulk_updates"`
	Touched     int      `json:"touched"`
	Committed   int      `json:"committed"`
	Rollbacks   int      `json:"rollbacks"`
	Error       string   `json:"error,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <workload.yaml>",
		Short: "Run a workload against a database",
		Long: `Seed the rows of a workload file and run its steps through a
delay-touching engine backed by a real store.

Every flush pass is written to the journal of the SQLite database, so
the scopes it creates can be inspected afterwards with "trace" and
"scopes". With --backend redis, rows live in Redis and only the journal
is kept in SQLite.

Flags override the values of the config file.

Examples:
  touchdelay apply --schema ./records --db ./touch.db burst.yaml
  touchdelay apply --config touchdelay.yaml --backend redis burst.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "record store backend (sqlite|redis)")
	cmd.Flags().StringVar(&opts.RedisAddr, "redis", "", "Redis address for the redis backend")
	cmd.Flags().StringVar(&opts.SchemaDir, "schema", "", "directory of CUE record schemas")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "cascading flush pass limit per scope")

	return cmd
}

// resolveConfig layers explicitly set flags over the config file.
func (o *ApplyOptions) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("backend") {
		cfg.Backend = o.Backend
	}
	if flags.Changed("redis") {
		cfg.RedisAddr = o.RedisAddr
	}
	if flags.Changed("schema") {
		cfg.SchemaDir = o.SchemaDir
	}
	if flags.Changed("max-passes") {
		cfg.MaxPasses = o.MaxPasses
	}

	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cfg.SchemaDir == "" {
		return nil, NewExitError(ExitCommandError, "no schema directory: set --schema or schema_dir")
	}
	return cfg, nil
}

func runApply(opts *ApplyOptions, workloadPath string, cmd *cobra.Command) error {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		_, shutdown, err := serveMetrics(cfg.MetricsAddr, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	reg, err := compiler.LoadDir(cfg.SchemaDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	w, err := workload.Load(workloadPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load workload", err)
	}

	st, err := store.Open(cfg.Database, reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	// Resume the journal sequence of an existing database.
	lastSeq, err := st.GetLastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	before, err := scopeSet(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	runnerOpts := []workload.Option{
		workload.WithLogger(logger),
		workload.WithEngineOptions(
			engine.WithJournal(st),
			engine.WithMaxPasses(cfg.MaxPasses),
			engine.WithClock(engine.NewClockAt(lastSeq)),
			engine.WithScopeIDGenerator(engine.UUIDv7Generator{}),
		),
	}

	var rows workload.RowStore = st
	switch cfg.Backend {
	case config.BackendRedis:
		client := redisstore.NewGoRedisClient(cfg.RedisAddr)
		defer client.Close()
		if err := client.Ping(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to reach redis", err)
		}
		rows = redisstore.New(client, reg)
	default:
		runnerOpts = append(runnerOpts, workload.WithTxManager(st))
	}

	res, err := workload.NewRunner(rows, runnerOpts...).Run(ctx, w)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare workload", err)
	}

	after, err := st.ListScopes(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := ApplyResult{
		Workload: w.Name,
		Backend:  cfg.Backend,
		Scopes:   []string{},
	}
	for _, sum := range after {
		if !before[sum.ScopeID] {
			result.Scopes = append(result.Scopes, sum.ScopeID)
		}
	}
	for _, e := range res.Trace {
		switch e.Kind {
		case workload.EventBulkUpdate:
			result.BulkUpdates++
		case workload.EventTouched:
			result.Touched++
		case workload.EventCommitted:
			result.Committed++
		case workload.EventRollback:
			result.Rollbacks++
		}
	}
	if res.Err != nil {
		result.Error = res.Err.Error()
	}

	return outputApply(opts, cmd, result, res)
}

// scopeSet returns the ids of the scopes already in the journal.
func scopeSet(ctx context.Context, st *store.Store) (map[string]bool, error) {
	scopes, err := st.ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(scopes))
	for _, sum := range scopes {
		set[sum.ScopeID] = true
	}
	return set, nil
}

func outputApply(opts *ApplyOptions, cmd *cobra.Command, result ApplyResult, res *workload.Result) error {
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if result.Error != "" {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_WORKLOAD_FAILED", Message: result.Error}
		}
		if err := writeJSON(w, response); err != nil {
			return err
		}
	} else {
		if opts.Verbose {
			for _, e := range res.Trace {
				fmt.Fprintf(w, "  %s\n", harness.EventLine(e))
			}
		}
		fmt.Fprintf(w, "Workload %s (%s): %d bulk update(s), %d touched, %d committed, %d rollback(s)\n",
			result.Workload, result.Backend, result.BulkUpdates, result.Touched, result.Committed, result.Rollbacks)
		for _, id := range result.Scopes {
			fmt.Fprintf(w, "  scope %s\n", id)
		}
		if result.Error != "" {
			fmt.Fprintf(w, "\u2717 %s\n", result.Error)
		} else {
			fmt.Fprintln(w, "\u2713 Workload applied")
		}
	}

	if result.Error != "" {
		return NewExitError(ExitFailure, "workload failed: "+result.Error)
	}
	return nil
}
