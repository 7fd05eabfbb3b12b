package testutil

import (
	"fmt"
	"sync"
)

// SequentialScopeIDs generates numbered scope ids: "<prefix>-1", "<prefix>-2", ...
//
// This enables deterministic test execution and golden snapshot comparison.
// The same workload with a fresh generator produces byte-identical traces.
//
// Unlike engine.FixedGenerator, which repeats its last id once exhausted,
// this generator never reuses an id, so journal entries of separate scopes
// stay distinguishable.
//
// Implements engine.ScopeIDGenerator.
//
// Thread-safety: SequentialScopeIDs is safe for concurrent use via internal mutex.
type SequentialScopeIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialScopeIDs creates a generator. An empty prefix becomes "scope".
func NewSequentialScopeIDs(prefix string) *SequentialScopeIDs {
	if prefix == "" {
		prefix = "scope"
	}
	return &SequentialScopeIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialScopeIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialScopeIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
