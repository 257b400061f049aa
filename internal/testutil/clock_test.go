package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock_HoldsReading(t *testing.T) {
	clock := NewManualClock(100)
	assert.Equal(t, int64(100), clock.Now())
	assert.Equal(t, int64(100), clock.Now())
}

func TestManualClock_SetAndAdvance(t *testing.T) {
	clock := NewManualClock(0)

	clock.Set(500)
	assert.Equal(t, int64(500), clock.Now())

	clock.Advance(25)
	assert.Equal(t, int64(525), clock.Now())
	assert.Equal(t, int64(525), clock.Current())
}

func TestSteppingClock_AdvancesAfterEachRead(t *testing.T) {
	clock := NewSteppingClock(10, 5)

	assert.Equal(t, int64(10), clock.Now())
	assert.Equal(t, int64(15), clock.Now())
	assert.Equal(t, int64(20), clock.Current())
}

func TestSteppingClock_ThreadSafe(t *testing.T) {
	clock := NewSteppingClock(1, 1)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := range results {
		for _, v := range results[i] {
			require.False(t, seen[v], "duplicate value %d", v)
			seen[v] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
