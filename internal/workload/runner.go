package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
)

// RowStore is a record store workloads can seed and inspect.
// Implemented by store.Store (SQLite) and redisstore.Store.
type RowStore interface {
	engine.RecordStore
	Registry() *ir.Registry
	EnsureTable(ctx context.Context, recordType string) error
	InsertRow(ctx context.Context, row *ir.Row) error
	LoadRow(ctx context.Context, recordType, id string) (*ir.Row, error)
	DeleteRow(ctx context.Context, row *ir.Row) error
}

// StepFailure is the error a fail step returns.
type StepFailure struct {
	Message string
}

func (e *StepFailure) Error() string {
	return "step failed: " + e.Message
}

// IsStepFailure reports whether err contains a StepFailure.
func IsStepFailure(err error) bool {
	var sf *StepFailure
	return errors.As(err, &sf)
}

// Result is the outcome of a workload run.
type Result struct {
	// Trace holds bulk updates, hooks and rollbacks in order.
	Trace []Event

	// Pending and Applied are the engine's batch sizes after the run;
	// both are zero once every scope has flushed.
	Pending int
	Applied int

	// Err is the error the workload stopped with, if any.
	Err error
}

// Runner executes workloads.
type Runner struct {
	store      RowStore
	tx         engine.TxManager
	engineOpts []engine.EngineOption
	logger     *slog.Logger

	engine  *engine.Engine
	trace   *Trace
	cascade *cascadeSink

	rows map[string]*ir.Row // identity map, "Type:id"
}

// Option configures a Runner.
type Option func(*Runner)

// WithTxManager sets the transaction manager for flush passes.
// Default: engine.NoTx.
func WithTxManager(tx engine.TxManager) Option {
	return func(r *Runner) {
		if tx != nil {
			r.tx = tx
		}
	}
}

// WithEngineOptions passes options through to the engine. Sink and
// transaction options are overridden by the runner.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(r *Runner) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// WithLogger sets the logger for the runner and its engine.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner over store.
func NewRunner(store RowStore, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		tx:     engine.NoTx{},
		logger: slog.Default(),
		trace:  &Trace{},
		rows:   make(map[string]*ir.Row),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cascade = &cascadeSink{runner: r}

	tx := r.tx
	if _, plain := tx.(engine.NoTx); !plain {
		tx = &tracingTx{TxManager: tx, trace: r.trace}
	}

	engineOpts := append([]engine.EngineOption{engine.WithLogger(r.logger)}, r.engineOpts...)
	engineOpts = append(engineOpts,
		engine.WithTxManager(tx),
		engine.WithSink(engine.MultiSink{traceSink{trace: r.trace}, r.cascade}),
	)
	r.engine = engine.New(&recordingStore{RecordStore: store, trace: r.trace}, engineOpts...)
	return r
}

// Engine returns the runner's engine.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run seeds the store and executes the workload's steps.
//
// The returned error covers setup only (tables, seeding); a step error is
// reported in Result.Err together with the trace up to that point.
func (r *Runner) Run(ctx context.Context, w *Workload) (*Result, error) {
	r.trace.reset()
	r.cascade.reset()
	r.rows = make(map[string]*ir.Row)

	for _, rt := range r.store.Registry().Types() {
		if err := r.store.EnsureTable(ctx, rt.Name); err != nil {
			return nil, fmt.Errorf("workload %s: %w", w.Name, err)
		}
	}
	if err := r.seed(ctx, w.Seed); err != nil {
		return nil, fmt.Errorf("workload %s: %w", w.Name, err)
	}

	ctx = r.engine.Attach(ctx)
	runErr := r.runSteps(ctx, w.Steps)
	if cascadeErr := r.cascade.err(); cascadeErr != nil {
		runErr = errors.Join(runErr, cascadeErr)
	}

	res := &Result{
		Trace:   r.trace.Events(),
		Pending: r.engine.PendingCount(ctx),
		Applied: r.engine.AppliedCount(ctx),
		Err:     runErr,
	}

	r.logger.Info("workload finished",
		"workload", w.Name,
		"events", len(res.Trace),
		"error", runErr,
	)
	return res, nil
}

func (r *Runner) seed(ctx context.Context, seed []SeedRow) error {
	for _, s := range seed {
		row := ir.NewRow(s.Type, s.ID)
		for fk, ref := range s.Refs {
			row.Refs[fk] = ref
		}
		for col, t := range s.Values {
			row.Values[col] = t.UTC()
		}
		if err := r.store.InsertRow(ctx, row); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		r.rows[RowRef{Type: s.Type, ID: s.ID}.key()] = row
	}
	return nil
}

func (r *Runner) runSteps(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if err := r.runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	switch step.Kind() {
	case KindTouch:
		row, err := r.row(ctx, step.Touch.RowRef)
		if err != nil {
			return err
		}
		n := max(step.Touch.Repeat, 1)
		for i := 0; i < n; i++ {
			if err := r.engine.Touch(ctx, row, step.Touch.Attrs...); err != nil {
				return err
			}
		}
		return nil

	case KindScope:
		return r.engine.DelayTouching(ctx, func(ctx context.Context) error {
			return r.runSteps(ctx, step.Scope)
		})

	case KindNoTouching:
		return r.engine.NoTouching(ctx, func(ctx context.Context) error {
			return r.runSteps(ctx, step.NoTouching.Steps)
		}, step.NoTouching.Types...)

	case KindFail:
		return &StepFailure{Message: step.Fail}

	case KindDelete:
		row, err := r.row(ctx, *step.Delete)
		if err != nil {
			return err
		}
		return r.store.DeleteRow(ctx, row)

	case KindForgetIdentity:
		row, err := r.row(ctx, *step.ForgetIdentity)
		if err != nil {
			return err
		}
		row.ForgetIdentity()
		return nil

	default:
		return fmt.Errorf("empty step")
	}
}

// row returns the identity-mapped row for ref, loading it on first use.
func (r *Runner) row(ctx context.Context, ref RowRef) (*ir.Row, error) {
	if row, ok := r.rows[ref.key()]; ok {
		return row, nil
	}
	row, err := r.store.LoadRow(ctx, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	r.rows[ref.key()] = row
	return row, nil
}

// Row returns the identity-mapped row for ref from the last run.
func (r *Runner) Row(ref RowRef) (*ir.Row, bool) {
	row, ok := r.rows[ref.key()]
	return row, ok
}
