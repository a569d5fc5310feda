package monitor

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counting is a keyed always-state that records how often it is stepped.
type counting struct {
	key   string
	calls *int
}

func (c counting) Step(e lockEvent) ([]State[lockEvent], bool) {
	*c.calls++
	if strconv.Itoa(e.Lock) != c.key {
		return nil, false
	}
	return Lift[lockEvent](c), true
}

func (c counting) Final() bool                  { return true }
func (c counting) PartitionKey() (string, bool) { return c.key, true }

// mustRelease demands that the very next event releases its lock.
type mustRelease struct{ Lock int }

func (s mustRelease) behavior() Behavior[lockEvent] {
	return Behavior[lockEvent]{
		Kind: KindNext,
		Primary: func(e lockEvent) ([]State[lockEvent], bool) {
			if e.Kind == "release" && e.Lock == s.Lock {
				return Lift(Ok[lockEvent]()), true
			}
			return nil, false
		},
	}
}

func (s mustRelease) Step(e lockEvent) ([]State[lockEvent], bool) { return s.behavior().Step(s, e) }
func (s mustRelease) Final() bool                                 { return s.behavior().Final() }
func (s mustRelease) PartitionKey() (string, bool)                { return strconv.Itoa(s.Lock), true }
func (s mustRelease) Immediate() bool                             { return true }

func TestPartitionBy_ScansOnlyMatchingBucket(t *testing.T) {
	var a, b int
	m := New[lockEvent]("keyed", quiet())
	m.AddInitial(counting{key: "10", calls: &a}, counting{key: "20", calls: &b})
	m.PartitionBy(lockKey)

	require.NoError(t, m.Verify(acquire(1, 10)))
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, b)

	m.PartitionBy(nil)
	require.NoError(t, m.Verify(acquire(1, 10)))
	assert.Equal(t, 2, a)
	assert.Equal(t, 1, b)
}

func TestPartitionBy_UnkeyedEventReachesEveryBucket(t *testing.T) {
	var a, b int
	m := New[lockEvent]("keyed", quiet())
	m.PartitionBy(func(e lockEvent) (string, bool) {
		if e.Lock == 0 {
			return "", false
		}
		return strconv.Itoa(e.Lock), true
	})
	m.AddInitial(counting{key: "10", calls: &a}, counting{key: "20", calls: &b})

	require.NoError(t, m.Verify(lockEvent{Kind: "tick"}))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestPartitionBy_MatchesUnpartitioned(t *testing.T) {
	trace := []lockEvent{
		acquire(1, 10), acquire(2, 20), acquire(3, 10),
		release(2, 20), release(1, 30), acquire(4, 30),
		release(1, 10), release(4, 30), acquire(2, 20),
	}

	var plainV, keyedV []Violation
	plain := newLockMonitor(WithViolationHandler(func(v Violation) { plainV = append(plainV, v) }))
	keyed := newLockMonitor(WithViolationHandler(func(v Violation) { keyedV = append(keyedV, v) }))
	keyed.PartitionBy(lockKey)

	for _, e := range trace {
		require.NoError(t, plain.Verify(e))
		require.NoError(t, keyed.Verify(e))
		assert.ElementsMatch(t, plain.States(), keyed.States())
	}
	require.NoError(t, plain.End())
	require.NoError(t, keyed.End())

	assert.Equal(t, plain.ErrorCount(), keyed.ErrorCount())
	assert.ElementsMatch(t, plainV, keyedV)
	assert.NotZero(t, plain.ErrorCount())
}

func TestPartitionBy_NextStateSeesOtherKeys(t *testing.T) {
	trace := []lockEvent{acquire(1, 2), release(1, 1)}

	run := func(partition bool) (*Monitor[lockEvent], []Violation) {
		var vs []Violation
		m := New[lockEvent]("handoff", quiet(), WithViolationHandler(func(v Violation) { vs = append(vs, v) }))
		m.AddInitial(mustRelease{Lock: 1})
		if partition {
			m.PartitionBy(lockKey)
		}
		for _, e := range trace {
			require.NoError(t, m.Verify(e))
		}
		require.NoError(t, m.End())
		return m, vs
	}

	plain, plainV := run(false)
	keyed, keyedV := run(true)

	assert.Equal(t, 1, plain.ErrorCount())
	assert.Equal(t, plain.ErrorCount(), keyed.ErrorCount())
	assert.ElementsMatch(t, plainV, keyedV)
	assert.Empty(t, keyed.states.buckets)
}

func TestPartitions_DropEmptyBuckets(t *testing.T) {
	m := newLockMonitor()
	m.PartitionBy(lockKey)

	require.NoError(t, m.Verify(acquire(1, 10)))
	require.NoError(t, m.Verify(acquire(1, 20)))
	assert.Len(t, m.states.buckets, 2)

	require.NoError(t, m.Verify(release(1, 10)))
	assert.Len(t, m.states.buckets, 1)
	assert.Equal(t, []string{"20"}, m.states.order)
	assert.True(t, m.Contains(Locked{Thread: 1, Lock: 20}))
}
