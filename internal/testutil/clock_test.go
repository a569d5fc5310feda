package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/engine"
)

var _ engine.SeqClock = (*DeterministicClock)(nil)

func TestDeterministicClock_Next(t *testing.T) {
	c := NewDeterministicClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestDeterministicClock_Reset(t *testing.T) {
	c := NewDeterministicClock()
	c.Next()
	c.Next()
	c.Reset()
	assert.Equal(t, int64(1), c.Next(), "after Reset the sequence starts over")
}

func TestDeterministicClock_SkipTo(t *testing.T) {
	c := NewDeterministicClock()
	c.Next()

	require.NoError(t, c.SkipTo(10))
	assert.Equal(t, int64(10), c.Next())
	assert.Equal(t, int64(11), c.Next())

	assert.Error(t, c.SkipTo(11), "a seq already used is rejected")
	assert.Error(t, c.SkipTo(3))
	assert.Equal(t, int64(11), c.Current(), "a rejected skip leaves the clock alone")
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	c := NewDeterministicClock()
	const goroutines = 20
	const calls = 50

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls, "every seq is handed out once")
	assert.Equal(t, int64(goroutines*calls), c.Current())
}
