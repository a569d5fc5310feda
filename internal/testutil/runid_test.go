package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tracemon/internal/engine"
)

var _ engine.RunIDGenerator = (*FixedRunIDGenerator)(nil)

func TestFixedRunIDGenerator(t *testing.T) {
	gen := NewFixedRunIDGenerator("scenario-1")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "scenario-1", gen.Generate())
	}
	assert.Equal(t, "test-run-default", NewFixedRunIDGenerator("").Generate())
}
