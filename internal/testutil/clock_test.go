package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/glyph/internal/tick"
)

var _ tick.Counter = (*DeterministicClock)(nil)

func TestDeterministicClockSteps(t *testing.T) {
	c := NewDeterministicClock()
	assert.Equal(t, int64(0), c.Current())

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestDeterministicClockAdvance(t *testing.T) {
	c := NewDeterministicClock()
	c.Next()

	assert.Equal(t, int64(20), c.Advance(19))
	assert.Equal(t, int64(21), c.Next())

	assert.Equal(t, int64(21), c.Advance(-5), "negative advance is ignored")
	assert.Equal(t, int64(21), c.Advance(0))
}

func TestDeterministicClockReset(t *testing.T) {
	c := NewDeterministicClock()
	c.Advance(7)
	c.Reset()

	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
}

func TestDeterministicClockConcurrent(t *testing.T) {
	c := NewDeterministicClock()

	const workers, perWorker = 8, 250
	seen := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				seen[w] = append(seen[w], c.Next())
			}
		}()
	}
	wg.Wait()

	unique := make(map[int64]bool)
	for _, steps := range seen {
		for i, s := range steps {
			if i > 0 {
				assert.Greater(t, s, steps[i-1], "steps seen by one goroutine increase")
			}
			unique[s] = true
		}
	}
	assert.Len(t, unique, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), c.Current())
}
