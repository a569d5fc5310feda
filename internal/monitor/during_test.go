package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuring_Implies(t *testing.T) {
	d := NewDuringFunc[string](nil,
		func(e string) bool { return e == "open" },
		func(e string) bool { return e == "close" },
	)

	assert.True(t, d.Implies(false), "vacuously true while off")

	_, ok := d.Step("open")
	require.True(t, ok)
	assert.True(t, d.Implies(true))
	assert.False(t, d.Implies(false))
}

func TestDuring_BeginWinsOverEnd(t *testing.T) {
	d := NewDuring[string](nil, []string{"x"}, []string{"x"})
	succ, ok := d.Step("x")
	require.True(t, ok)
	assert.True(t, d.On())
	assert.Equal(t, []State[string]{d}, succ)
}

func TestDuring_NotApplicable(t *testing.T) {
	d := NewDuring[string](nil, []string{"a"}, []string{"b"})
	_, ok := d.Step("c")
	assert.False(t, ok)
	assert.True(t, d.Final())
}

func TestDuring_String(t *testing.T) {
	d := NewDuring[string](nil, []string{"a"}, []string{"b"})
	assert.Equal(t, "during(off)", d.String())

	d.Named("Critical")
	d.Step("a")
	assert.Equal(t, "Critical(on)", d.String())
}

func TestDuring_AsInvariantGuard(t *testing.T) {
	m := New[string]("guarded", quiet())
	d := NewDuring(m, []string{"enter"}, []string{"exit"})
	writing := false
	m.AddInitial(Always(Table[string](func(e string) ([]State[string], bool) {
		writing = e == "write"
		return nil, false
	})))
	m.Invariant("no writes inside critical section", func() bool {
		return d.Implies(!writing)
	})

	for _, e := range []string{"write", "enter", "exit", "enter", "write", "exit"} {
		require.NoError(t, m.Verify(e))
	}
	assert.Equal(t, 1, m.ErrorCount())
}
