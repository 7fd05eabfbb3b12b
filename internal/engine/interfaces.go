package engine

import (
	"context"
	"time"

	"github.com/roach88/touchdelay/internal/ir"
)

// Record is a touchable record.
//
// Implementations must be comparable and are compared by identity, so
// pointer types are expected (*ir.Row is the stock implementation).
type Record interface {
	RecordType() string
	// Identity returns the primary key, or false if the record has none
	// (never persisted, or lost its key on rollback).
	Identity() (string, bool)
	IsDeleted() bool
	SetColumn(name string, t time.Time)
	ClearDirty(names ...string)
}

// RecordStore applies bulk touches.
type RecordStore interface {
	// BulkUpdate sets every column in values on all records of recordType
	// addressed by ids, in one operation.
	BulkUpdate(ctx context.Context, recordType string, ids []string, values map[string]time.Time) error

	// TouchColumns returns the columns every touch of recordType stamps.
	TouchColumns(recordType string) []string

	// CurrentTime returns the timestamp to stamp onto rec.
	// Time zone and precision policy belongs to the store.
	CurrentTime(rec Record) time.Time
}

// TxManager demarcates transactions around flush passes.
type TxManager interface {
	// RunAtomically runs fn in a transaction. Nested calls join the
	// outer transaction.
	RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error

	// HasOpenTransaction reports whether ctx carries an open transaction.
	HasOpenTransaction(ctx context.Context) bool

	// DeferCommit runs fn after the transaction in ctx commits.
	// fn is dropped if the transaction rolls back.
	DeferCommit(ctx context.Context, fn func(ctx context.Context))
}

// NotificationSink receives per-record hooks. Hooks are fire-and-forget.
type NotificationSink interface {
	OnTouched(ctx context.Context, rec Record)
	OnCommitted(ctx context.Context, rec Record)
}

// Suppressor decides whether touches of a record are disabled.
type Suppressor interface {
	IsTouchSuppressed(rec Record) bool
}

// ImmediateToucher applies a touch right away (no active delay scope).
type ImmediateToucher interface {
	TouchNow(ctx context.Context, rec Record, keys []ir.AttrKey) error
}

// Journal records every bulk update a flush applies.
// RecordFlush is called inside the pass transaction.
type Journal interface {
	RecordFlush(ctx context.Context, entry ir.FlushEntry) error
}

// ScopeIDGenerator generates ids for outermost delay scopes.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type ScopeIDGenerator interface {
	Generate() string
}

// noTouching is implemented by records that can switch touching off
// themselves.
type noTouching interface {
	NoTouching() bool
}

// NoTx is a TxManager without transactions: bodies run directly and commit
// hooks fire immediately.
type NoTx struct{}

// RunAtomically runs fn directly.
func (NoTx) RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// HasOpenTransaction always returns false.
func (NoTx) HasOpenTransaction(context.Context) bool { return false }

// DeferCommit runs fn immediately.
func (NoTx) DeferCommit(ctx context.Context, fn func(ctx context.Context)) { fn(ctx) }

// SinkFuncs adapts plain functions to NotificationSink. Nil funcs are skipped.
type SinkFuncs struct {
	Touched   func(ctx context.Context, rec Record)
	Committed func(ctx context.Context, rec Record)
}

// OnTouched calls Touched.
func (s SinkFuncs) OnTouched(ctx context.Context, rec Record) {
	if s.Touched != nil {
		s.Touched(ctx, rec)
	}
}

// OnCommitted calls Committed.
func (s SinkFuncs) OnCommitted(ctx context.Context, rec Record) {
	if s.Committed != nil {
		s.Committed(ctx, rec)
	}
}

// MultiSink fans hooks out to every sink in order.
type MultiSink []NotificationSink

// OnTouched forwards to every sink.
func (m MultiSink) OnTouched(ctx context.Context, rec Record) {
	for _, s := range m {
		s.OnTouched(ctx, rec)
	}
}

// OnCommitted forwards to every sink.
func (m MultiSink) OnCommitted(ctx context.Context, rec Record) {
	for _, s := range m {
		s.OnCommitted(ctx, rec)
	}
}

// SuppressorFunc adapts a function to Suppressor.
type SuppressorFunc func(rec Record) bool

// IsTouchSuppressed calls f.
func (f SuppressorFunc) IsTouchSuppressed(rec Record) bool {
	return f(rec)
}
