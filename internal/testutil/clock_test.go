package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_Defaults(t *testing.T) {
	clock := NewDeterministicClock(time.Time{}, 0)
	assert.Equal(t, DefaultEpoch, clock.Current())

	assert.Equal(t, DefaultEpoch, clock.Now())
	assert.Equal(t, DefaultEpoch.Add(time.Second), clock.Now())
}

func TestDeterministicClock_StepsMonotonically(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	clock := NewDeterministicClock(start, time.Millisecond)

	first := clock.Now()
	assert.Equal(t, time.UTC, first.Location())
	assert.True(t, first.Equal(start))

	assert.Equal(t, first.Add(time.Millisecond), clock.Now())
	assert.Equal(t, first.Add(2*time.Millisecond), clock.Now())
	assert.Equal(t, first.Add(3*time.Millisecond), clock.Current())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(time.Time{}, time.Minute)

	clock.Now()
	clock.Now()
	clock.Now()
	assert.Equal(t, DefaultEpoch.Add(3*time.Minute), clock.Current())

	clock.Reset()
	assert.Equal(t, DefaultEpoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(time.Time{}, time.Second)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}

	wg.Wait()

	seen := make(map[time.Time]bool)
	for i := range results {
		for _, v := range results[i] {
			require.False(t, seen[v], "duplicate instant %s", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestDeterministicClock_Deterministic(t *testing.T) {
	clock1 := NewDeterministicClock(time.Time{}, time.Second)
	clock2 := NewDeterministicClock(time.Time{}, time.Second)

	for i := 0; i < 100; i++ {
		assert.Equal(t, clock1.Now(), clock2.Now())
	}
}
