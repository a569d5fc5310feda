package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	specsDir   = "testdata/specs"
	invalidDir = "testdata/invalid"
)

func textOpts() *RootOptions { return &RootOptions{Format: "text"} }

func jsonOpts() *RootOptions { return &RootOptions{Format: "json"} }

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// recordRun checks trace with --db and returns the database path.
func recordRun(t *testing.T, dbPath, trace, runID string, extra ...string) {
	t.Helper()
	args := append([]string{specsDir, trace, "--db", dbPath, "--run-id", runID}, extra...)
	_, err := execute(t, NewCheckCommand(textOpts()), args...)
	code := GetExitCode(err)
	require.Contains(t, []int{ExitSuccess, ExitFailure}, code, "check failed: %v", err)
}
