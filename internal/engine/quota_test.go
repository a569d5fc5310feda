package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateQuota_WithinLimit(t *testing.T) {
	q := NewStateQuota(10)

	for states := 1; states <= 10; states++ {
		assert.NoError(t, q.Check("run-1", states), "%d states should be allowed", states)
	}
	assert.Equal(t, 10, q.Peak())
	assert.Equal(t, 10, q.MaxStates())
}

func TestStateQuota_ExceedsLimit(t *testing.T) {
	q := NewStateQuota(5)

	err := q.Check("run-1", 6)
	require.Error(t, err)
	assert.True(t, IsStatesExceededError(err))
	assert.True(t, IsQuotaError(err))
	assert.Contains(t, err.Error(), "run-1")
	assert.Contains(t, err.Error(), "6 states > 5 limit")
}

func TestStateQuota_PeakSurvivesShrink(t *testing.T) {
	q := NewStateQuota(100)
	require.NoError(t, q.Check("run-1", 40))
	require.NoError(t, q.Check("run-1", 3))
	assert.Equal(t, 40, q.Peak())
}

func TestStateQuota_ZeroDisables(t *testing.T) {
	q := NewStateQuota(0)
	assert.NoError(t, q.Check("run-1", 1_000_000))
}

func TestIsStatesExceededError_Wrapped(t *testing.T) {
	err := fmt.Errorf("verify: %w", &StatesExceededError{RunID: "r", States: 3, Limit: 2})
	assert.True(t, IsStatesExceededError(err))
	assert.False(t, IsStatesExceededError(fmt.Errorf("other")))
}

func TestRuntimeError(t *testing.T) {
	err := NewQuotaError("run-1", 12, 10)
	assert.Equal(t, "QUOTA_EXCEEDED: run exceeded max states (12 > 10) (run=run-1)", err.Error())
	assert.Equal(t, "12", err.Details["states"])
	assert.True(t, IsQuotaError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsInvalidEvent(err))

	inv := NewInvalidEventError("", "event name is required")
	assert.Equal(t, "INVALID_EVENT: event name is required", inv.Error())
	assert.True(t, IsInvalidEvent(inv))
	assert.False(t, IsRunEnded(inv))
}
