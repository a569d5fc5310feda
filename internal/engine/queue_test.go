package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	ok := q.Enqueue(named("open"))
	require.True(t, ok, "enqueue should succeed")

	batch := q.Take()
	require.Len(t, batch, 1)
	assert.Equal(t, "open", batch[0].Name)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, name := range []string{"A", "B", "C"} {
		q.Enqueue(named(name))
	}

	batch := q.Take()
	require.Len(t, batch, 3)
	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, batch[i].Name)
	}
}

func TestEventQueue_Take_Empty(t *testing.T) {
	q := newEventQueue()
	assert.Nil(t, q.Take())
}

func TestEventQueue_TakeReusesBuffers(t *testing.T) {
	q := newEventQueue()

	q.Enqueue(ir.Event{Name: "first", Args: ir.Object{"l": ir.Int(1)}})
	first := q.Take()
	require.Len(t, first, 1)

	q.Enqueue(named("second"))
	q.Enqueue(named("third"))
	second := q.Take()
	require.Len(t, second, 2)
	assert.Equal(t, "second", second[0].Name)

	// The first batch's buffer is now the pending one, emptied of old args.
	assert.Empty(t, first[0].Name)
	assert.Nil(t, first[0].Args)

	q.Enqueue(named("fourth"))
	third := q.Take()
	require.Len(t, third, 1)
	assert.Equal(t, "fourth", third[0].Name)
	assert.Equal(t, 2, q.Peak())
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(named("late"))
	}()

	select {
	case <-q.Wait():
	case <-time.After(5 * time.Second):
		t.Fatal("no signal after enqueue")
	}
	batch := q.Take()
	require.Len(t, batch, 1)
	assert.Equal(t, "late", batch[0].Name)
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(named("kept"))
	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(named("dropped")), "enqueue after close should fail")
	assert.Equal(t, 1, q.Len(), "close keeps queued events")

	select {
	case <-q.Wait():
	default:
		t.Fatal("wait channel should be closed")
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(ir.Event{Name: "tick"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
