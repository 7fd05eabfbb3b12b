package engine

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/touchdelay/internal/ir"
)

// batchState tracks delayed touches for one logical unit of work.
//
// It holds no package-level data; every outermost DelayTouching creates one
// and carries it in the context. Methods lock mu, but callers never hold
// the lock across collaborator calls: hooks running during a flush enqueue
// into the same state.
//
// INVARIANTS:
//   - a record appears at most once in pending[key]
//   - a (record, key) pair in applied is never added to pending again until
//     clear()
//   - keyOrder lists exactly the keys present in pending, in first-seen order
type batchState struct {
	mu       sync.Mutex
	scopeID  string
	nesting  int
	pending  map[ir.AttrKey]*recordSet
	keyOrder []ir.AttrKey
	applied  map[ir.AttrKey]mapset.Set[Record]
}

// recordSet is an insertion-ordered set of records.
type recordSet struct {
	records []Record
	members map[Record]struct{}
}

func newRecordSet() *recordSet {
	return &recordSet{members: make(map[Record]struct{})}
}

func (s *recordSet) add(rec Record) bool {
	if _, ok := s.members[rec]; ok {
		return false
	}
	s.members[rec] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

func (s *recordSet) remove(recs []Record) {
	removed := false
	for _, rec := range recs {
		if _, ok := s.members[rec]; ok {
			delete(s.members, rec)
			removed = true
		}
	}
	if !removed {
		return
	}
	kept := s.records[:0]
	for _, rec := range s.records {
		if _, ok := s.members[rec]; ok {
			kept = append(kept, rec)
		}
	}
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = nil // release for GC
	}
	s.records = kept
}

func (s *recordSet) len() int {
	return len(s.records)
}

// group is the unit of one bulk update: records of one type under one key.
type group struct {
	key        ir.AttrKey
	recordType string
	records    []Record
}

func newBatchState() *batchState {
	return &batchState{
		pending: make(map[ir.AttrKey]*recordSet),
		applied: make(map[ir.AttrKey]mapset.Set[Record]),
	}
}

// enter increments nesting. On the 0 -> 1 transition the scope gets a
// fresh id from gen. Returns the new depth.
func (b *batchState) enter(gen ScopeIDGenerator) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nesting == 0 {
		b.scopeID = gen.Generate()
	}
	b.nesting++
	return b.nesting
}

// exit decrements nesting. Returns the new depth.
func (b *batchState) exit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nesting > 0 {
		b.nesting--
	}
	return b.nesting
}

// leave is called when a scope's body returns. If the scope is the last
// one open it reports true and keeps nesting at 1 so the flush runs inside
// the scope; the caller exits afterwards. Otherwise it decrements nesting.
func (b *batchState) leave() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nesting <= 1 {
		return true
	}
	b.nesting--
	return false
}

func (b *batchState) depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nesting
}

func (b *batchState) id() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scopeID
}

// pendingFor is the explicit get-or-create accessor for pending[key].
// Caller holds mu.
func (b *batchState) pendingFor(key ir.AttrKey) *recordSet {
	set, ok := b.pending[key]
	if !ok {
		set = newRecordSet()
		b.pending[key] = set
		b.keyOrder = append(b.keyOrder, key)
	}
	return set
}

// appliedFor is the get-or-create accessor for applied[key].
// Caller holds mu.
func (b *batchState) appliedFor(key ir.AttrKey) mapset.Set[Record] {
	set, ok := b.applied[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[Record]()
		b.applied[key] = set
	}
	return set
}

// add queues rec under key. Returns false when the touch was absorbed:
// either rec is already pending under key or it was already applied in
// this scope.
func (b *batchState) add(key ir.AttrKey, rec Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if applied, ok := b.applied[key]; ok && applied.Contains(rec) {
		return false
	}
	return b.pendingFor(key).add(rec)
}

// markApplied moves recs from pending[key] to applied[key].
func (b *batchState) markApplied(key ir.AttrKey, recs []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.pending[key]; ok {
		set.remove(recs)
		if set.len() == 0 {
			b.dropKey(key)
		}
	}
	b.appliedFor(key).Append(recs...)
}

// dropKey removes an empty key from pending and keyOrder. Caller holds mu.
func (b *batchState) dropKey(key ir.AttrKey) {
	delete(b.pending, key)
	for i, k := range b.keyOrder {
		if k == key {
			b.keyOrder = append(b.keyOrder[:i], b.keyOrder[i+1:]...)
			break
		}
	}
}

// groups snapshots pending touches grouped by key, then record type.
// Keys, record types and records keep first-seen order.
func (b *batchState) groups() []group {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []group
	for _, key := range b.keyOrder {
		set := b.pending[key]
		if set == nil || set.len() == 0 {
			continue
		}
		index := make(map[string]int)
		start := len(out)
		for _, rec := range set.records {
			rt := rec.RecordType()
			i, ok := index[rt]
			if !ok {
				i = len(out) - start
				index[rt] = i
				out = append(out, group{key: key, recordType: rt})
			}
			out[start+i].records = append(out[start+i].records, rec)
		}
	}
	return out
}

// hasPending reports whether any touch is queued.
func (b *batchState) hasPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.pending {
		if set.len() > 0 {
			return true
		}
	}
	return false
}

// pendingCount returns the number of queued (record, key) pairs.
func (b *batchState) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.pending {
		n += set.len()
	}
	return n
}

// appliedCount returns the number of applied (record, key) pairs.
func (b *batchState) appliedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.applied {
		n += set.Cardinality()
	}
	return n
}

// clear drops pending and applied touches. Nesting is left alone.
func (b *batchState) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = make(map[ir.AttrKey]*recordSet)
	b.keyOrder = nil
	b.applied = make(map[ir.AttrKey]mapset.Set[Record])
}
