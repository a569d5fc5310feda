package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCompileValidSpecs(t *testing.T) {
	out, err := execute(t, NewCompileCommand(textOpts()), specsDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 1 monitor(s)")
	assert.Contains(t, out, "Locks: 2 state(s), 1 during(s), 0 invariant(s)")
	assert.Contains(t, out, "Spec hash: ")
}

func TestCompileValidSpecsJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(jsonOpts()), specsDir)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Data.SpecHash)
	assert.Equal(t, []string{"Locks"}, resp.Data.Roots)
	require.Len(t, resp.Data.Monitors, 1)
	m := resp.Data.Monitors[0]
	assert.Equal(t, []string{"Idle"}, m.Initial)
	require.Len(t, m.Examples, 2)
	assert.Empty(t, m.Examples[1].Scenario)
}

func TestCompileSpecHashIsStable(t *testing.T) {
	hash := func() string {
		out, err := execute(t, NewCompileCommand(jsonOpts()), specsDir)
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		return resp.Data.SpecHash
	}
	assert.Equal(t, hash(), hash())
}

func TestCompileWritesJSONFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "ir.json")
	out, err := execute(t, NewCompileCommand(textOpts()), specsDir, "--output", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote IR to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "Locks", result.Monitors[0].Name)
}

func TestCompileWritesYAMLFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "ir.yaml")
	_, err := execute(t, NewCompileCommand(textOpts()), specsDir, "-o", outFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "spec_hash")
	monitors := doc["monitors"].([]any)
	assert.Equal(t, "Locks", monitors[0].(map[string]any)["name"])
}

func TestCompileInvalidSpecs(t *testing.T) {
	out, err := execute(t, NewCompileCommand(textOpts()), invalidDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, err.Error(), "2 error(s)")
}

func TestCompileInvalidSpecsJSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(jsonOpts()), invalidDir)
	require.Error(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Len(t, resp.Data.([]any), 2)
}

func TestCompileCUESyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.cue", "monitor: X: {\n")

	out, err := execute(t, NewCompileCommand(textOpts()), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Regexp(t, ErrCodeBuildFailed+"|"+ErrCodeLoadFailed, out)
}

func TestCompileUnwritableOutput(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "missing", "dir", "ir.json")
	out, err := execute(t, NewCompileCommand(textOpts()), specsDir, "-o", outFile)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeWriteFailed)
}
