package workload

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roach88/touchdelay/internal/engine"
	"github.com/roach88/touchdelay/internal/ir"
)

// Event kinds.
const (
	EventBulkUpdate = "bulk_update"
	EventTouched    = "touched"
	EventCommitted  = "committed"
	EventRollback   = "rollback"
)

// Event is one observable effect of a workload.
type Event struct {
	Seq        int       `json:"seq"`
	Kind       string    `json:"kind"`
	RecordType string    `json:"record_type,omitempty"`
	IDs        []string  `json:"ids,omitempty"`
	Columns    []string  `json:"columns,omitempty"`
	StampedAt  time.Time `json:"stamped_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Canonical returns the event as a map for ir.MarshalCanonical, leaving out
// empty fields (canonical JSON forbids null).
func (e Event) Canonical() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"kind": e.Kind,
	}
	if e.RecordType != "" {
		m["record_type"] = e.RecordType
	}
	if len(e.IDs) > 0 {
		m["ids"] = e.IDs
	}
	if len(e.Columns) > 0 {
		m["columns"] = e.Columns
	}
	if !e.StampedAt.IsZero() {
		m["stamped_at"] = e.StampedAt
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Trace collects events in order.
//
// Thread-safety: Trace is safe for concurrent use via internal mutex.
type Trace struct {
	mu     sync.Mutex
	events []Event
}

func (t *Trace) add(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Seq = len(t.events) + 1
	t.events = append(t.events, e)
}

// Events returns a copy of the events recorded so far.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Trace) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// recordingStore traces every successful bulk update of the wrapped store.
type recordingStore struct {
	engine.RecordStore
	trace *Trace
}

func (s *recordingStore) BulkUpdate(ctx context.Context, recordType string, ids []string, values map[string]time.Time) error {
	if err := s.RecordStore.BulkUpdate(ctx, recordType, ids, values); err != nil {
		return err
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var stamped time.Time
	if len(cols) > 0 {
		stamped = values[cols[0]]
	}
	s.trace.add(Event{
		Kind:       EventBulkUpdate,
		RecordType: recordType,
		IDs:        append([]string(nil), ids...),
		Columns:    cols,
		StampedAt:  stamped,
	})
	return nil
}

// tracingTx traces outermost transactions that roll back.
type tracingTx struct {
	engine.TxManager
	trace *Trace
}

func (t *tracingTx) RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error {
	outer := !t.HasOpenTransaction(ctx)
	err := t.TxManager.RunAtomically(ctx, fn)
	if err != nil && outer {
		t.trace.add(Event{Kind: EventRollback, Error: err.Error()})
	}
	return err
}

// traceSink traces per-record hooks.
type traceSink struct {
	trace *Trace
}

func (s traceSink) OnTouched(_ context.Context, rec engine.Record) {
	s.trace.add(hookEvent(EventTouched, rec))
}

func (s traceSink) OnCommitted(_ context.Context, rec engine.Record) {
	s.trace.add(hookEvent(EventCommitted, rec))
}

func hookEvent(kind string, rec engine.Record) Event {
	id, _ := rec.Identity()
	return Event{Kind: kind, RecordType: rec.RecordType(), IDs: []string{id}}
}

// CanonicalTrace encodes events as canonical JSON for golden comparison.
func CanonicalTrace(events []Event) ([]byte, error) {
	arr := make([]any, len(events))
	for i, e := range events {
		arr[i] = e.Canonical()
	}
	return ir.MarshalCanonical(arr)
}
