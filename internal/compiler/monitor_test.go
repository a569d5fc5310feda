package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
)

const lockMonitorCUE = `
monitor: Locks: {
	scope: "keyed(\"lock\")"
	state: Idle: {
		kind: "always"
		on: [{
			event: "acquire"
			bind: {t: "thread", l: "lock"}
			unless_fact: [{fact: "Locked", where: {l: "bound.l"}}]
			goto: [{state: "Locked", args: {t: "bound.t", l: "bound.l"}}]
		}, {
			event: "acquire"
			goto: ["error"]
			message: "lock already held"
		}]
	}
	state: Locked: {
		kind: "hot"
		params: ["t", "l"]
		key: "l"
		on: [{event: "release", match: {thread: "bound.t", lock: "bound.l"}, goto: ["ok"]}]
	}
	during: Critical: {begin: ["enter"], end: [{event: "exit", match: {code: 0}}]}
	invariant: "single holder": {fact: "Locked", max: 1, during: "Critical"}
	examples: [{description: "acquire then release", scenario: "scenarios/locks.yaml"}]
}
`

func compileString(t *testing.T, src, path string) (*ir.MonitorSpec, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileMonitor(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileMonitorBasic(t *testing.T) {
	spec, err := compileString(t, lockMonitorCUE, "monitor.Locks")
	require.NoError(t, err)

	assert.Equal(t, "Locks", spec.Name)
	assert.Equal(t, ir.ScopeSpec{Mode: ir.ScopeKeyed, Key: "lock"}, spec.Scope)
	assert.Equal(t, []string{"Idle"}, spec.Initial, "first state is the default initial state")
	require.Len(t, spec.States, 2)

	idle := spec.States[0]
	assert.Equal(t, "always", idle.Kind)
	require.Len(t, idle.On, 2)
	assert.Equal(t, map[string]string{"t": "thread", "l": "lock"}, idle.On[0].Bind)
	assert.Equal(t, []ir.FactPattern{{Fact: "Locked", Where: ir.Object{"l": ir.String("bound.l")}}}, idle.On[0].UnlessFact)
	assert.Equal(t, []ir.TargetSpec{{
		State: "Locked",
		Args:  ir.Object{"t": ir.String("bound.t"), "l": ir.String("bound.l")},
	}}, idle.On[0].Goto)
	assert.Equal(t, []ir.TargetSpec{{State: ir.TargetError}}, idle.On[1].Goto)
	assert.Equal(t, "lock already held", idle.On[1].Message)

	locked := spec.States[1]
	assert.Equal(t, []string{"t", "l"}, locked.Params)
	assert.Equal(t, "l", locked.Key)

	require.Len(t, spec.Durings, 1)
	assert.Equal(t, []ir.EventPattern{{Event: "enter"}}, spec.Durings[0].Begin)
	assert.Equal(t, []ir.EventPattern{{Event: "exit", Match: ir.Object{"code": ir.Int(0)}}}, spec.Durings[0].End)

	require.Len(t, spec.Invariants, 1)
	inv := spec.Invariants[0]
	assert.Equal(t, "single holder", inv.Label)
	assert.Equal(t, "Locked", inv.Fact)
	require.NotNil(t, inv.Max)
	assert.Equal(t, int64(1), *inv.Max)
	assert.Nil(t, inv.Min)
	assert.Equal(t, "Critical", inv.During)

	require.Len(t, spec.Examples, 1)
	assert.Equal(t, "scenarios/locks.yaml", spec.Examples[0].Scenario)

	assert.Empty(t, Validate(spec))
}

func TestCompileMonitorDefaults(t *testing.T) {
	spec, err := compileString(t, `
		monitor: M: {
			state: A: {kind: "watch", on: [{event: "x", goto: ["ok"]}]}
		}
	`, "monitor.M")
	require.NoError(t, err)

	assert.Equal(t, ir.ScopeGlobal, spec.Scope.Mode)
	assert.False(t, spec.StopOnError)
	assert.False(t, spec.PrintSteps)
	assert.Equal(t, []string{"A"}, spec.Initial)
}

func TestCompileMonitorFlags(t *testing.T) {
	spec, err := compileString(t, `
		monitor: M: {
			stop_on_error: true
			print_steps: true
			initial: ["B", "A"]
			monitors: ["Child"]
			state: A: {kind: "watch", on: [{event: "x", goto: ["ok"]}]}
			state: B: {kind: "always", on: [{event: "y", goto: ["A"]}]}
		}
	`, "monitor.M")
	require.NoError(t, err)

	assert.True(t, spec.StopOnError)
	assert.True(t, spec.PrintSteps)
	assert.Equal(t, []string{"B", "A"}, spec.Initial)
	assert.Equal(t, []string{"Child"}, spec.Monitors)
}

func TestCompileMonitorUnlessWithWatchTable(t *testing.T) {
	spec, err := compileString(t, `
		monitor: M: {
			state: Open: {
				kind: "until"
				on: [{event: "close", goto: ["ok"]}]
				watch: [{event: "write", goto: ["ok"]}]
			}
		}
	`, "monitor.M")
	require.NoError(t, err)

	require.Len(t, spec.States[0].Watch, 1)
	assert.Equal(t, "write", spec.States[0].Watch[0].Event)
}

func TestCompileMonitorFind(t *testing.T) {
	spec, err := compileString(t, `
		monitor: M: {
			state: Idle: {
				kind: "always"
				on: [{
					event: "release"
					bind: {l: "lock"}
					find: {
						fact: "Held"
						where: {l: "bound.l"}
						bind: {holder: "t"}
						else: [{state: "error"}]
					}
					goto: [{state: "Released", args: {t: "bound.holder"}}]
				}]
			}
			state: Held: {kind: "watch", params: ["t", "l"], on: [{event: "never", goto: ["ok"]}]}
			state: Released: {kind: "watch", params: ["t"], on: [{event: "never", goto: ["ok"]}]}
		}
	`, "monitor.M")
	require.NoError(t, err)

	find := spec.States[0].On[0].Find
	require.NotNil(t, find)
	assert.Equal(t, "Held", find.Fact)
	assert.Equal(t, map[string]string{"holder": "t"}, find.Bind)
	assert.Equal(t, []ir.TargetSpec{{State: ir.TargetError}}, find.Else)
}

func TestCompileMonitorMissingStates(t *testing.T) {
	_, err := compileString(t, `monitor: M: {scope: "global"}`, "monitor.M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one state")
}

func TestCompileMonitorMissingKind(t *testing.T) {
	_, err := compileString(t, `monitor: M: {state: A: {on: []}}`, "monitor.M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind is required")
}

func TestCompileMonitorMissingGoto(t *testing.T) {
	_, err := compileString(t, `monitor: M: {state: A: {kind: "watch", on: [{event: "x"}]}}`, "monitor.M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goto is required")
}

func TestCompileMonitorInvalidScope(t *testing.T) {
	_, err := compileString(t, `
		monitor: M: {
			scope: "flow"
			state: A: {kind: "watch", on: [{event: "x", goto: ["ok"]}]}
		}
	`, "monitor.M")
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "scope", cerr.Field)
}

func TestCompileMonitorFloatRejected(t *testing.T) {
	_, err := compileString(t, `
		monitor: M: {
			state: A: {kind: "watch", on: [{event: "x", match: {ratio: 0.5}, goto: ["ok"]}]}
		}
	`, "monitor.M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestCompileMonitorExamplesForms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []ir.Example
	}{
		{"string", `examples: "holds a lock"`, []ir.Example{{Description: "holds a lock"}}},
		{"object", `examples: {description: "d", scenario: "s.yaml"}`, []ir.Example{{Description: "d", Scenario: "s.yaml"}}},
		{"list", `examples: ["a", {description: "b"}]`, []ir.Example{{Description: "a"}, {Description: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := compileString(t, `monitor: M: {
				state: A: {kind: "watch", on: [{event: "x", goto: ["ok"]}]}
				`+tt.src+`
			}`, "monitor.M")
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.Examples)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "state.A.kind", Message: "kind is required"}
	assert.Equal(t, "state.A.kind: kind is required", err.Error())
}
