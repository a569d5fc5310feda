package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool", Bool(true), "true"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"sorted keys", Object{"zebra": Int(1), "alpha": Int(2)}, `{"alpha":2,"zebra":1}`},
		{"nested", Object{"z": Object{"b": Int(1), "a": Int(2)}, "a": Int(3)}, `{"a":3,"z":{"a":2,"b":1}}`},
		{"no html escape", String("<a&b>"), `"<a&b>"`},
		{"go types", map[string]any{"n": 1, "s": "x", "b": false}, `{"b":false,"n":1,"s":"x"}`},
		{"go slice", []any{1, "a"}, `[1,"a"]`},
		{"control chars", String("a\nb\t\"c\"\\"), `"a\nb\t\"c\"\\"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"nil", nil},
		{"null", Null{}},
		{"null in object", Object{"a": Null{}}},
		{"float64", 1.5},
		{"float in map", map[string]any{"x": 2.5}},
		{"unsupported", struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" plus a combining acute accent normalizes to U+00E9.
	a, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	b, err := MarshalCanonical(String("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, b, a)

	key, err := MarshalCanonical(Object{"e\u0301": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\u00e9\":1}", string(key))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	// A literal backslash followed by the text u2028 stays escaped.
	got, err = MarshalCanonical(String(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	obj := Object{"c": Int(3), "a": Array{Int(1), Object{"y": Int(1), "x": Int(2)}}, "b": Bool(true)}
	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for range 20 {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
