package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/compiler"
)

func TestValidateValidSpecs(t *testing.T) {
	out, err := execute(t, NewValidateCommand(textOpts()), specsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All specs valid (1 monitor(s))")
}

func TestValidateValidSpecsJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(jsonOpts()), specsDir)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, 1.0, data["monitors"])
}

func TestValidateCollectsAllErrors(t *testing.T) {
	out, err := execute(t, NewValidateCommand(textOpts()), invalidDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownTarget)
	assert.Contains(t, out, "Nowhere")
	assert.Contains(t, out, compiler.ErrUnknownChild)
	assert.Contains(t, out, "Ghost")
}

func TestValidateErrorsJSON(t *testing.T) {
	out, err := execute(t, NewValidateCommand(jsonOpts()), invalidDir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, resp.Data.Errors[0].Code, resp.Error.Code)
}

func TestValidateMissingDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(textOpts()), "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(textOpts()), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNoFiles)
}

func TestValidateCompileError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `monitor: Bad: {
	state: S: {kind: "sometimes"}
}
`)
	out, err := execute(t, NewValidateCommand(textOpts()), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, compiler.ErrInvalidKind)
}

func TestValidateReportsUnreachableStates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "m.cue", `monitor: M: {
	state: A: {kind: "always"}
	state: B: {kind: "hot"}
}
`)
	out, err := execute(t, NewValidateCommand(textOpts()), dir)
	require.NoError(t, err)
	assert.Contains(t, out, `warning: M: state "B" is unreachable`)
}

func TestValidateSpecsDir(t *testing.T) {
	errs, err := ValidateSpecsDir(specsDir)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateSpecsDir(invalidDir)
	require.NoError(t, err)
	assert.Len(t, errs, 2)

	_, err = ValidateSpecsDir("testdata/nope")
	assert.Error(t, err)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"cue", ErrCodeBuildFailed},
		{"state", compiler.ErrMonitorNoStates},
		{"scope", compiler.ErrInvalidScopeMode},
		{"value", compiler.ErrFloatForbidden},
		{"state.S.kind", compiler.ErrInvalidKind},
		{"state.S.on[0].goto", compiler.ErrInvalidTransition},
		{"state.S.on[0].if.fact", compiler.ErrInvalidFactPattern},
		{"invariant.x", compiler.ErrInvalidInvariant},
		{"examples", ErrCodeGeneric},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field), tt.field)
	}
}
