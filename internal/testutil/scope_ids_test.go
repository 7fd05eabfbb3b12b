package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialScopeIDs_Numbers(t *testing.T) {
	gen := NewSequentialScopeIDs("run")

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Equal(t, "run-3", gen.Generate())
}

func TestSequentialScopeIDs_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequentialScopeIDs("")
	assert.Equal(t, "scope-1", gen.Generate())
}

func TestSequentialScopeIDs_Reset(t *testing.T) {
	gen := NewSequentialScopeIDs("s")
	gen.Generate()
	gen.Generate()

	gen.Reset()
	assert.Equal(t, "s-1", gen.Generate())
}

func TestSequentialScopeIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialScopeIDs("t")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
}
