package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactKey_Structural(t *testing.T) {
	a := MustFactKey("Locked", Object{"t": Int(1), "l": Int(10)})
	b := MustFactKey("Locked", ObjectOf(O("l", Int(10)), O("t", Int(1))))
	assert.Equal(t, a, b, "independently built equal facts share a key")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, MustFactKey("Locked", Object{"t": Int(2), "l": Int(10)}))
	assert.NotEqual(t, a, MustFactKey("Held", Object{"t": Int(1), "l": Int(10)}))
	assert.NotEqual(t, a, MustFactKey("Locked", Object{"t": String("1"), "l": Int(10)}))
	assert.Equal(t, MustFactKey("Idle", nil), MustFactKey("Idle", Object{}))
}

func TestFactKey_RejectsNull(t *testing.T) {
	_, err := FactKey("Bad", Object{"x": Null{}})
	assert.Error(t, err)
}

func TestEventID(t *testing.T) {
	ev := Event{Name: "acquire", Args: Object{"lock": Int(10)}, Seq: 1}

	a, err := EventID("run-1", ev)
	require.NoError(t, err)
	b, err := EventID("run-1", ev)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := EventID("run-2", ev)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	ev.Seq = 2
	later, err := EventID("run-1", ev)
	require.NoError(t, err)
	assert.NotEqual(t, a, later)
}

func TestViolationID(t *testing.T) {
	v := Violation{Monitor: "Locks", Kind: "safety", Message: "lock already held", Step: 2, Seq: 2}
	a, err := ViolationID("run-1", v)
	require.NoError(t, err)

	v.ID = "ignored"
	b, err := ViolationID("run-1", v)
	require.NoError(t, err)
	assert.Equal(t, a, b, "the id field itself does not feed the hash")

	v.Step = 3
	c, err := ViolationID("run-1", v)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	v.Index = 1
	d, err := ViolationID("run-1", v)
	require.NoError(t, err)
	assert.NotEqual(t, c, d, "repeats within one event get distinct ids")
}

func TestHashDomainsSeparate(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainFact, data), hashWithDomain(DomainEvent, data))
}

func TestSpecHash(t *testing.T) {
	specs := []MonitorSpec{{
		Name:    "Locks",
		Scope:   ScopeSpec{Mode: ScopeGlobal},
		Initial: []string{"Idle"},
		States: []StateSpec{{
			Name: "Idle",
			Kind: "always",
			On:   []TransitionSpec{{Event: "acquire", Match: Object{"lock": Int(10)}, Goto: []TargetSpec{{State: TargetOk}}}},
		}},
	}}

	a, err := SpecHash(specs)
	require.NoError(t, err)
	b, err := SpecHash(specs)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	specs[0].States[0].Kind = "watch"
	c, err := SpecHash(specs)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
