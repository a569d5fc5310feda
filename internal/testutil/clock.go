package testutil

import (
	"fmt"
	"sync"
)

// DeterministicClock is a resettable seq clock for scenarios.
//
// It satisfies engine.SeqClock. Unlike engine.Clock it can be reset between
// runs of the same scenario and moved forward to an explicit seq, so a
// scenario can reproduce the gaps of a recorded trace.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next seq.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last seq handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// SkipTo makes the next call to Next return seq. Seqs never go back: seq
// must be greater than Current.
func (c *DeterministicClock) SkipTo(seq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.seq {
		return fmt.Errorf("seq %d is not after %d", seq, c.seq)
	}
	c.seq = seq - 1
	return nil
}

// Reset rewinds the clock so the next call to Next returns 1.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
