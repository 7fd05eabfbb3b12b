package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/roach88/touchdelay/internal/ir"
)

// bulkCall is one recorded RecordStore.BulkUpdate.
type bulkCall struct {
	RecordType string
	IDs        []string
	Values     map[string]time.Time
}

// fakeStore records bulk updates. Each CurrentTime call advances one second.
type fakeStore struct {
	mu      sync.Mutex
	columns map[string][]string
	calls   []bulkCall
	fail    map[string]error
	base    time.Time
	ticks   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		columns: map[string][]string{
			"Post":    {"updated_at"},
			"Comment": {"updated_at"},
			"Tag":     {},
		},
		fail: make(map[string]error),
		base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) BulkUpdate(_ context.Context, recordType string, ids []string, values map[string]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[recordType]; err != nil {
		return err
	}
	idsCopy := append([]string(nil), ids...)
	valuesCopy := make(map[string]time.Time, len(values))
	for k, v := range values {
		valuesCopy[k] = v
	}
	s.calls = append(s.calls, bulkCall{RecordType: recordType, IDs: idsCopy, Values: valuesCopy})
	return nil
}

func (s *fakeStore) TouchColumns(recordType string) []string {
	return s.columns[recordType]
}

func (s *fakeStore) CurrentTime(Record) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	return s.base.Add(time.Duration(s.ticks) * time.Second)
}

func (s *fakeStore) bulkCalls() []bulkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bulkCall(nil), s.calls...)
}

// fakeTx is a TxManager with commit hooks. Nested RunAtomically joins.
type fakeTx struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	commitErr error
	log       *[]string
}

type fakeTxKey struct{}

type fakeTxState struct {
	hooks []func(ctx context.Context)
}

func (m *fakeTx) RunAtomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeTxState); ok {
		return fn(ctx)
	}
	st := &fakeTxState{}
	txCtx := context.WithValue(ctx, fakeTxKey{}, st)
	if err := fn(txCtx); err != nil {
		m.mu.Lock()
		m.rollbacks++
		m.mu.Unlock()
		return err
	}
	if m.commitErr != nil {
		m.mu.Lock()
		m.rollbacks++
		m.mu.Unlock()
		return m.commitErr
	}
	m.mu.Lock()
	m.commits++
	if m.log != nil {
		*m.log = append(*m.log, "commit")
	}
	m.mu.Unlock()
	for _, h := range st.hooks {
		h(ctx)
	}
	return nil
}

func (m *fakeTx) HasOpenTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(fakeTxKey{}).(*fakeTxState)
	return ok
}

func (m *fakeTx) DeferCommit(ctx context.Context, fn func(ctx context.Context)) {
	st, ok := ctx.Value(fakeTxKey{}).(*fakeTxState)
	if !ok {
		fn(ctx)
		return
	}
	st.hooks = append(st.hooks, fn)
}

// recordingSink logs hook calls as "touched Post:1" / "committed Post:1".
type recordingSink struct {
	mu        sync.Mutex
	events    []string
	onTouched func(ctx context.Context, rec Record)
}

func (s *recordingSink) OnTouched(ctx context.Context, rec Record) {
	s.mu.Lock()
	s.events = append(s.events, "touched "+label(rec))
	s.mu.Unlock()
	if s.onTouched != nil {
		s.onTouched(ctx, rec)
	}
}

func (s *recordingSink) OnCommitted(_ context.Context, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "committed "+label(rec))
}

func (s *recordingSink) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func label(rec Record) string {
	id, _ := rec.Identity()
	return fmt.Sprintf("%s:%s", rec.RecordType(), id)
}

// quietRow is a row that opts out of touching itself.
type quietRow struct {
	*ir.Row
}

func (quietRow) NoTouching() bool { return true }

func newTestEngine(t *testing.T, s RecordStore, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{WithScopeIDGenerator(NewFixedGenerator("scope-1", "scope-2", "scope-3"))}
	return New(s, append(base, opts...)...)
}
