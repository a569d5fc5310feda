package engine

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
)

// setupTestStore creates a temp-dir store closed at test end.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quiet() EngineOption {
	return WithMonitorOptions(monitor.WithLogger(slog.New(slog.DiscardHandler)))
}

func newTestEngine(t *testing.T, specs []ir.MonitorSpec, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{quiet(), WithRunIDGenerator(NewFixedGenerator("run-1"))}, opts...)
	e, err := New(specs, opts...)
	require.NoError(t, err)
	return e
}

func bound(name string) ir.Value { return ir.String("bound." + name) }

func acquire(thread, lock int64) ir.Event {
	return ir.Event{Name: "acquire", Args: ir.Object{"thread": ir.Int(thread), "lock": ir.Int(lock)}}
}

func release(thread, lock int64) ir.Event {
	return ir.Event{Name: "release", Args: ir.Object{"thread": ir.Int(thread), "lock": ir.Int(lock)}}
}

func named(name string) ir.Event { return ir.Event{Name: name} }

// lockSpec: a lock may not be acquired while held, and every acquired lock
// must be released.
func lockSpec() ir.MonitorSpec {
	return ir.MonitorSpec{
		Name:    "Locks",
		Scope:   ir.ScopeSpec{Mode: ir.ScopeGlobal},
		Initial: []string{"Idle"},
		States: []ir.StateSpec{
			{
				Name: "Idle",
				Kind: "always",
				On: []ir.TransitionSpec{{
					Event:      "acquire",
					Bind:       map[string]string{"t": "thread", "l": "lock"},
					UnlessFact: []ir.FactPattern{{Fact: "Locked", Where: ir.Object{"l": bound("l")}}},
					Goto:       []ir.TargetSpec{{State: "Locked"}},
				}},
			},
			{
				Name:   "Locked",
				Kind:   "hot",
				Params: []string{"t", "l"},
				Key:    "l",
				On: []ir.TransitionSpec{
					{
						Event: "release",
						Match: ir.Object{"thread": bound("t"), "lock": bound("l")},
						Goto:  []ir.TargetSpec{{State: ir.TargetOk}},
					},
					{
						Event:   "acquire",
						Match:   ir.Object{"lock": bound("l")},
						Goto:    []ir.TargetSpec{{State: ir.TargetError}},
						Message: "lock already held",
					},
				},
			},
		},
	}
}

func keyedLockSpec() ir.MonitorSpec {
	spec := lockSpec()
	spec.Scope = ir.ScopeSpec{Mode: ir.ScopeKeyed, Key: "lock"}
	return spec
}

func int64p(n int64) *int64 { return &n }
