package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/touchdelay/internal/ir"
)

const tracerName = "github.com/roach88/touchdelay/internal/engine"

// flush applies every pending touch of b, pass after pass, until hooks stop
// queueing new ones. Called only on outermost scope exit.
//
// b is cleared on every return path.
func (e *Engine) flush(ctx context.Context, b *batchState) (err error) {
	defer b.clear()

	if !b.hasPending() {
		return nil
	}

	scopeID := b.id()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "touchdelay.Flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("touchdelay.scope_id", scopeID)),
	)
	defer span.End()

	quota := NewPassQuota(e.maxPasses)
	groups, rows := 0, 0

	defer func() {
		flushDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(
			attribute.Int("touchdelay.passes", quota.Current()),
			attribute.Int("touchdelay.groups", groups),
			attribute.Int("touchdelay.rows", rows),
		)
		if err != nil {
			flushErrors.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Debug("flush failed",
				"scope_id", scopeID,
				"passes", quota.Current(),
				"error", err,
			)
			return
		}
		e.logger.Info("touches flushed",
			"scope_id", scopeID,
			"passes", quota.Current(),
			"groups", groups,
			"rows", rows,
		)
	}()

	for b.hasPending() {
		if cerr := ctx.Err(); cerr != nil {
			return &FlushError{
				Code:    ErrCodeCancelled,
				Message: "flush cancelled",
				ScopeID: scopeID,
				Pass:    quota.Current(),
				Err:     cerr,
			}
		}
		if qerr := quota.Check(scopeID); qerr != nil {
			e.logger.Error("flush pass quota exceeded",
				"scope_id", scopeID,
				"passes", quota.Current(),
				"limit", quota.Max(),
				"pending", b.pendingCount(),
			)
			return qerr
		}

		g, r, perr := e.runPass(ctx, b, scopeID, quota.Current())
		groups += g
		rows += r
		if perr != nil {
			return perr
		}
	}
	return nil
}

// runPass applies one snapshot of the pending groups inside one transaction.
// Touches queued by hooks during the pass land in pending for the next one.
func (e *Engine) runPass(ctx context.Context, b *batchState, scopeID string, pass int) (groups, rows int, err error) {
	snapshot := b.groups()
	flushPasses.Inc()

	ctx, span := e.tracer.Start(ctx, "touchdelay.FlushPass")
	span.SetAttributes(
		attribute.String("touchdelay.scope_id", scopeID),
		attribute.Int("touchdelay.pass", pass),
		attribute.Int("touchdelay.groups", len(snapshot)),
	)
	defer span.End()

	e.logger.Debug("flush pass",
		"scope_id", scopeID,
		"pass", pass,
		"groups", len(snapshot),
	)

	err = e.tx.RunAtomically(ctx, func(ctx context.Context) error {
		for _, g := range snapshot {
			if cerr := ctx.Err(); cerr != nil {
				return newGroupError(ErrCodeCancelled, scopeID, pass, g, cerr)
			}

			w, werr := e.writeGroup(ctx, g, extraColumn(g.key)...)
			if werr != nil {
				return newGroupError(ErrCodeBulkUpdateFailed, scopeID, pass, g, werr)
			}
			if jerr := e.journalGroup(ctx, scopeID, pass, g, w); jerr != nil {
				return newGroupError(ErrCodeJournalFailed, scopeID, pass, g, jerr)
			}

			b.markApplied(g.key, g.records)
			trace.SpanFromContext(ctx).AddEvent("bulk_update", trace.WithAttributes(
				attribute.String("touchdelay.record_type", g.recordType),
				attribute.Int("touchdelay.rows", len(w.ids)),
			))
			e.notifyGroup(ctx, g)

			groups++
			rows += len(w.ids)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var fe *FlushError
		if !errors.As(err, &fe) {
			err = &FlushError{
				Code:    ErrCodeTransactionFailed,
				Message: fmt.Sprintf("flush pass %d", pass),
				ScopeID: scopeID,
				Pass:    pass,
				Err:     err,
			}
		}
	}
	return groups, rows, err
}

// extraColumn returns the column a non-default attribute key names.
func extraColumn(key ir.AttrKey) []string {
	if key.IsDefault() {
		return nil
	}
	return []string{string(key)}
}

// groupWrite describes what writeGroup stamped.
type groupWrite struct {
	columns []string
	ids     []string
	now     time.Time
}

// writeGroup stamps one timestamp onto every non-deleted record of g and
// persists it with a single BulkUpdate.
//
// Records without an identity are stamped in memory only. An empty column
// list writes nothing.
func (e *Engine) writeGroup(ctx context.Context, g group, extra ...string) (groupWrite, error) {
	var w groupWrite
	if len(g.records) == 0 {
		return w, nil
	}

	w.columns = touchColumns(e.store.TouchColumns(g.recordType), extra)
	if len(w.columns) == 0 {
		return w, nil
	}

	w.now = e.store.CurrentTime(g.records[0])

	seen := make(map[string]bool, len(g.records))
	for _, rec := range g.records {
		if rec.IsDeleted() {
			continue
		}
		for _, col := range w.columns {
			rec.SetColumn(col, w.now)
		}
		rec.ClearDirty(w.columns...)

		id, ok := rec.Identity()
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		w.ids = append(w.ids, id)
	}

	if len(w.ids) == 0 {
		return w, nil
	}

	values := make(map[string]time.Time, len(w.columns))
	for _, col := range w.columns {
		values[col] = w.now
	}
	if err := e.store.BulkUpdate(ctx, g.recordType, w.ids, values); err != nil {
		return w, err
	}

	bulkUpdates.Inc()
	rowsPerBulkUpdate.Observe(float64(len(w.ids)))
	e.logger.Debug("bulk update",
		"record_type", g.recordType,
		"attr", g.key.String(),
		"columns", w.columns,
		"rows", len(w.ids),
	)
	return w, nil
}

// touchColumns concatenates base and extra, dropping duplicates and blanks.
func touchColumns(base, extra []string) []string {
	cols := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, c := range list {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			cols = append(cols, c)
		}
	}
	return cols
}

// journalGroup records a written group. Groups that wrote nothing are not
// journalled.
func (e *Engine) journalGroup(ctx context.Context, scopeID string, pass int, g group, w groupWrite) error {
	if e.journal == nil || len(w.ids) == 0 {
		return nil
	}
	entry := ir.FlushEntry{
		ScopeID:    scopeID,
		Pass:       pass,
		Seq:        e.clock.Next(),
		AttrKey:    g.key,
		RecordType: g.recordType,
		Columns:    w.columns,
		RecordIDs:  w.ids,
		StampedAt:  w.now,
	}
	id, err := ir.FlushEntryID(entry)
	if err != nil {
		return err
	}
	entry.ID = id
	return e.journal.RecordFlush(ctx, entry)
}

// notifyGroup fires the touch hook for every record of g with an identity,
// and schedules the commit hook for after the surrounding transaction.
// Records that lost their identity since being queued are skipped.
func (e *Engine) notifyGroup(ctx context.Context, g group) {
	for _, rec := range g.records {
		if _, ok := rec.Identity(); !ok {
			e.logger.Debug("skipping hooks for record without identity",
				"record_type", rec.RecordType(),
				"attr", g.key.String(),
			)
			continue
		}

		e.sink.OnTouched(ctx, rec)

		if e.tx.HasOpenTransaction(ctx) {
			e.tx.DeferCommit(ctx, func(ctx context.Context) {
				e.sink.OnCommitted(ctx, rec)
			})
		} else {
			e.sink.OnCommitted(ctx, rec)
		}
	}
}
