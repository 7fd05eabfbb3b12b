package engine

import (
	"context"
)

// DelayTouching runs body with touches delayed.
//
// Touches made through the context handed to body are queued. When the
// last open DelayTouching on the batch returns, queued touches are flushed:
// one bulk update per (attribute key, record type). Scopes that exit while
// another is still open only decrease the nesting depth.
//
// The flush runs whether or not body failed. A body error is returned
// unchanged when the flush succeeds; when both fail the result is
// errors.Join(bodyErr, flushErr), so errors.Is matches either.
//
// The flush is run by whichever scope exits last, so a nested scope that
// outlives its outer body (for example one opened on another goroutine)
// still has its touches written.
//
// If body panics, nothing is flushed, the batch is cleared, the nesting
// depth is restored and the panic continues. Unlike a returned error, a
// panic drops the pending touches without flushing.
func (e *Engine) DelayTouching(ctx context.Context, body func(ctx context.Context) error) (err error) {
	ctx = e.Attach(ctx)
	b := e.batchFrom(ctx)

	if b.enter(e.scopeIDs) == 1 {
		e.logger.Debug("delay scope opened", "scope_id", b.id())
	}

	left := false
	defer func() {
		if left {
			return
		}
		if r := recover(); r != nil {
			if b.exit() == 0 {
				e.logger.Debug("delay scope panicked, dropping pending touches",
					"scope_id", b.id(),
					"pending", b.pendingCount(),
				)
				b.clear()
			}
			panic(r)
		}
		b.exit()
	}()

	bodyErr := body(ctx)

	if !b.leave() {
		left = true
		return bodyErr
	}

	return joinScopeErrors(bodyErr, e.flush(ctx, b))
}

// IsDelayActive reports whether ctx is inside a DelayTouching scope of this
// engine.
func (e *Engine) IsDelayActive(ctx context.Context) bool {
	return e.Nesting(ctx) > 0
}

// Nesting returns the DelayTouching depth of ctx, 0 outside any scope.
func (e *Engine) Nesting(ctx context.Context) int {
	if b := e.batchFrom(ctx); b != nil {
		return b.depth()
	}
	return 0
}

// noTouchKey is the context key for record types with touching disabled.
type noTouchKey struct{ e *Engine }

// noTouchSet holds the record types a NoTouching scope disables.
// all is set when the scope named no types.
type noTouchSet struct {
	all   bool
	types map[string]struct{}
}

func (s *noTouchSet) covers(recordType string) bool {
	if s == nil {
		return false
	}
	if s.all {
		return true
	}
	_, ok := s.types[recordType]
	return ok
}

// NoTouching runs body with touches of recordTypes dropped. With no record
// types, every touch is dropped. Scopes nest: an inner scope adds to the
// types disabled by the outer one.
func (e *Engine) NoTouching(ctx context.Context, body func(ctx context.Context) error, recordTypes ...string) error {
	outer, _ := ctx.Value(noTouchKey{e}).(*noTouchSet)

	inner := &noTouchSet{
		all:   len(recordTypes) == 0,
		types: make(map[string]struct{}),
	}
	if outer != nil {
		inner.all = inner.all || outer.all
		for t := range outer.types {
			inner.types[t] = struct{}{}
		}
	}
	for _, t := range recordTypes {
		inner.types[t] = struct{}{}
	}

	return body(context.WithValue(ctx, noTouchKey{e}, inner))
}

// suppressed reports whether touches of rec are disabled in ctx.
func (e *Engine) suppressed(ctx context.Context, rec Record) bool {
	if e.suppressor != nil && e.suppressor.IsTouchSuppressed(rec) {
		return true
	}
	if nt, ok := rec.(noTouching); ok && nt.NoTouching() {
		return true
	}
	set, _ := ctx.Value(noTouchKey{e}).(*noTouchSet)
	return set.covers(rec.RecordType())
}
