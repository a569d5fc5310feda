package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/ir"
)

func TestExtractScenario(t *testing.T) {
	dir := specsDir(t)

	path, err := ExtractScenario("Locks", ir.Example{Description: "d", Scenario: "scenarios/double_acquire.yaml"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scenarios", "double_acquire.yaml"), path)

	path, err = ExtractScenario("Locks", ir.Example{Description: "prose only"}, dir)
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = ExtractScenario("Locks", ir.Example{Description: "d", Scenario: "scenarios/missing.yaml"}, dir)
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Locks", nf.Monitor)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestValidateExamples(t *testing.T) {
	dir := specsDir(t)
	specs, err := compiler.CompileDir(dir)
	require.NoError(t, err)

	result, err := ValidateExamples(context.Background(), specs, dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalExamples)
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Skipped)
	assert.True(t, result.OK(), "failures: %v", result.Failures)
}

func TestValidateExamples_Failures(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong
description: "expects no errors from a double acquire"
specs: .
events:
  - event: acquire
    args: {thread: 1, lock: 7}
  - event: acquire
    args: {thread: 2, lock: 7}
assertions:
  - type: error_count
    count: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [\n"), 0o644))

	specs := []ir.MonitorSpec{{
		Name: "Locks",
		Examples: []ir.Example{
			{Description: "wrong expectation", Scenario: "wrong.yaml"},
			{Description: "broken file", Scenario: "bad.yaml"},
			{Description: "missing file", Scenario: "gone.yaml"},
		},
	}}
	src, err := os.ReadFile(filepath.Join("testdata", "specs", "locks.cue"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "locks.cue"), src, 0o644))

	result, err := ValidateExamples(context.Background(), specs, dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalExamples)
	assert.Equal(t, 2, result.TotalScenarios)
	assert.Equal(t, 3, result.Failed)
	assert.False(t, result.OK())
	require.Len(t, result.Failures, 3)
	assert.Contains(t, result.Failures[0].Error, "scenario assertions failed")
	assert.Contains(t, result.Failures[1].Error, "failed to load scenario")
	assert.Contains(t, result.Failures[2].Error, "does not exist")
}
