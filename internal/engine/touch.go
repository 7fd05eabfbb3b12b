package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/touchdelay/internal/ir"
)

// ErrNilRecord is returned by Touch for a nil record.
var ErrNilRecord = errors.New("touch: nil record")

// Touch stamps the current time onto rec's touch columns and onto each
// attribute named in attrs.
//
// Inside a DelayTouching scope the touch is queued, deduplicated by
// (record, attribute) and applied when the outermost scope exits; Touch then
// always returns nil. Outside a scope, or when touching rec is suppressed,
// the touch goes to the ImmediateToucher and its error is returned.
func (e *Engine) Touch(ctx context.Context, rec Record, attrs ...string) error {
	if rec == nil {
		return ErrNilRecord
	}

	keys := attrKeys(attrs)

	b := e.batchFrom(ctx)
	if b == nil || b.depth() == 0 || e.suppressed(ctx, rec) {
		return e.immediate.TouchNow(ctx, rec, keys)
	}

	for _, key := range keys {
		if b.add(key, rec) {
			touchesTotal.WithLabelValues(modeDeferred).Inc()
			e.logger.Debug("touch queued",
				"scope_id", b.id(),
				"record_type", rec.RecordType(),
				"attr", key.String(),
			)
			continue
		}
		touchesDeduplicated.Inc()
	}
	return nil
}

// attrKeys normalizes attribute names. No names means the default key.
// Duplicates collapse; first occurrence wins.
func attrKeys(attrs []string) []ir.AttrKey {
	if len(attrs) == 0 {
		return []ir.AttrKey{ir.DefaultAttr}
	}
	keys := make([]ir.AttrKey, 0, len(attrs))
	seen := make(map[ir.AttrKey]bool, len(attrs))
	for _, a := range attrs {
		k := ir.NewAttrKey(a)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// directToucher is the default ImmediateToucher. It stamps one record as a
// single group inside its own transaction, with the same column, hook and
// deleted-record rules a flush uses.
type directToucher struct {
	e *Engine
}

// TouchNow applies the touch right away. Suppressed records are dropped.
func (d *directToucher) TouchNow(ctx context.Context, rec Record, keys []ir.AttrKey) error {
	e := d.e
	if e.suppressed(ctx, rec) {
		touchesTotal.WithLabelValues(modeSuppressed).Inc()
		e.logger.Debug("touch suppressed", "record_type", rec.RecordType())
		return nil
	}

	touchesTotal.WithLabelValues(modeImmediate).Inc()

	// All keys share one group: one timestamp and one write.
	g := group{key: ir.DefaultAttr, recordType: rec.RecordType(), records: []Record{rec}}
	extra := make([]string, 0, len(keys))
	for _, k := range keys {
		if !k.IsDefault() {
			extra = append(extra, string(k))
		}
	}

	err := e.tx.RunAtomically(ctx, func(ctx context.Context) error {
		if _, err := e.writeGroup(ctx, g, extra...); err != nil {
			return err
		}
		e.notifyGroup(ctx, g)
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch %s: %w", rec.RecordType(), err)
	}
	return nil
}
