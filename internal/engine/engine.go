package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Engine coordinates delayed touches.
//
// An Engine holds configuration and collaborators only. Batch state lives in
// the context passed through DelayTouching, so one Engine is safe to share
// across goroutines as long as each unit of work uses its own context chain.
//
// Thread-safety model:
//   - New(), option setters: construction only
//   - DelayTouching(), Touch(), NoTouching(): safe from any goroutine
//   - a single batch (one context chain) must not be flushed concurrently
type Engine struct {
	store      RecordStore
	tx         TxManager
	sink       NotificationSink
	suppressor Suppressor
	immediate  ImmediateToucher
	journal    Journal
	logger     *slog.Logger
	scopeIDs   ScopeIDGenerator
	clock      *Clock
	tracer     trace.Tracer
	maxPasses  int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxPasses sets the maximum flush passes per outermost scope.
//
// Default: 100 passes (DefaultMaxPasses)
// Use WithMaxPasses(2) for testing quota enforcement.
func WithMaxPasses(maxPasses int) EngineOption {
	return func(e *Engine) {
		e.maxPasses = maxPasses
	}
}

// WithTxManager sets the transaction manager flush passes run in.
func WithTxManager(tx TxManager) EngineOption {
	return func(e *Engine) {
		if tx != nil {
			e.tx = tx
		}
	}
}

// WithSink sets the notification sink for touch and commit hooks.
func WithSink(sink NotificationSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithSuppressor sets the policy that disables touching per record.
func WithSuppressor(s Suppressor) EngineOption {
	return func(e *Engine) {
		e.suppressor = s
	}
}

// WithImmediateToucher replaces the toucher used outside delay scopes.
func WithImmediateToucher(t ImmediateToucher) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.immediate = t
		}
	}
}

// WithJournal records every bulk update a flush applies.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithScopeIDGenerator sets the generator for outermost scope ids.
// Default: UUIDv7Generator.
func WithScopeIDGenerator(g ScopeIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.scopeIDs = g
		}
	}
}

// WithClock sets the logical clock that orders journal entries.
// Used to continue after the last journal entry of an existing database.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithTracerProvider sets where flush spans go.
// Default: the global provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an Engine that writes through store.
//
// Options can be passed to configure the engine (e.g., WithTxManager,
// WithSink, WithMaxPasses).
func New(store RecordStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		tx:        NoTx{},
		sink:      SinkFuncs{},
		logger:    slog.Default(),
		scopeIDs:  UUIDv7Generator{},
		clock:     NewClock(),
		tracer:    otel.Tracer(tracerName),
		maxPasses: DefaultMaxPasses,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.immediate == nil {
		e.immediate = &directToucher{e: e}
	}

	return e
}

// batchKey is the context key for an engine's batch state. Keying by engine
// lets two engines (e.g. two databases) delay independently in one context.
type batchKey struct{ e *Engine }

// batchFrom returns the batch state carried by ctx, or nil.
func (e *Engine) batchFrom(ctx context.Context) *batchState {
	b, _ := ctx.Value(batchKey{e}).(*batchState)
	return b
}

// Attach returns a context carrying a fresh, idle batch for this engine.
//
// DelayTouching attaches one on demand, so calling Attach is optional. It is
// useful when the caller wants to observe the batch across scopes (see
// PendingCount) or to bind a unit of work up front, e.g. per HTTP request.
// If ctx already carries a batch, ctx is returned unchanged.
func (e *Engine) Attach(ctx context.Context) context.Context {
	if e.batchFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, batchKey{e}, newBatchState())
}

// PendingCount returns the number of queued (record, attribute key) pairs
// in ctx's batch, 0 if ctx has none.
func (e *Engine) PendingCount(ctx context.Context) int {
	if b := e.batchFrom(ctx); b != nil {
		return b.pendingCount()
	}
	return 0
}

// AppliedCount returns the number of (record, attribute key) pairs already
// stamped in the current flush cycle of ctx's batch.
func (e *Engine) AppliedCount(ctx context.Context) int {
	if b := e.batchFrom(ctx); b != nil {
		return b.appliedCount()
	}
	return 0
}

// ScopeID returns the id of the outermost scope active in ctx, or "" when
// no scope is active.
func (e *Engine) ScopeID(ctx context.Context) string {
	b := e.batchFrom(ctx)
	if b == nil || b.depth() == 0 {
		return ""
	}
	return b.id()
}
