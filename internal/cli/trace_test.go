package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
)

func traceDB(t *testing.T) string {
	t.Helper()
	dbPath := recordedDB(t)
	recordRun(t, dbPath, "testdata/traces/unreleased.yaml", "run-c")
	return dbPath
}

func TestTraceListsRuns(t *testing.T) {
	dbPath := traceDB(t)

	out, err := execute(t, NewTraceCommand(textOpts()), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "run-b")
	assert.Contains(t, out, "run-c")
	assert.Contains(t, out, "ended")
	assert.Contains(t, out, "4 event(s), 0 error(s)")
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, NewTraceCommand(textOpts()), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")
}

func TestTraceTimeline(t *testing.T) {
	dbPath := traceDB(t)

	out, err := execute(t, NewTraceCommand(textOpts()), "--db", dbPath, "--run", "run-b")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-b (ended)")
	assert.Contains(t, out, "[1] acquire(lock=7, thread=1)")
	assert.Contains(t, out, "[2] acquire(lock=7, thread=2)")
	assert.Contains(t, out, "✗ [safety] Locks: lock already held")
	assert.Contains(t, out, "Stats: 2 event(s), 1 violation(s)")
}

func TestTraceLivenessAtEnd(t *testing.T) {
	dbPath := traceDB(t)

	out, err := execute(t, NewTraceCommand(textOpts()), "--db", dbPath, "--run", "run-c")
	require.NoError(t, err)
	assert.Contains(t, out, "[end]\n      ✗ [liveness] Locks: hot state active at end")
	assert.Contains(t, out, "Locks.Locked(l=9, t=3) (hot)")
}

func TestTraceFactQuery(t *testing.T) {
	dbPath := traceDB(t)

	out, err := execute(t, NewTraceCommand(textOpts()),
		"--db", dbPath, "--run", "run-c", "--fact", "Locked", "--where", "l=9", "--select", "t")
	require.NoError(t, err)
	assert.Equal(t, "Locks.Locked(l=9, t=3)  -> t=3\n", out)

	out, err = execute(t, NewTraceCommand(textOpts()),
		"--db", dbPath, "--run", "run-c", "--fact", "Locked", "--where", "l=1")
	require.NoError(t, err)
	assert.Contains(t, out, "No facts match Locked(l=1)")

	out, err = execute(t, NewTraceCommand(textOpts()),
		"--db", dbPath, "--run", "run-c", "--fact", "Locked", "--monitor", "Other")
	require.NoError(t, err)
	assert.Contains(t, out, "No facts match Locked")
}

func TestTraceFactQueryJSON(t *testing.T) {
	dbPath := traceDB(t)

	out, err := execute(t, NewTraceCommand(jsonOpts()),
		"--db", dbPath, "--run", "run-c", "--fact", "Locked", "--select", "t")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   FactQueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-c", resp.Data.RunID)
	require.Len(t, resp.Data.Matches, 1)
	m := resp.Data.Matches[0]
	assert.Equal(t, "Locks", m.Monitor)
	assert.Equal(t, "Locked", m.Name)
	assert.Equal(t, ir.Int(3), m.Bindings["t"])
}

func TestTraceErrors(t *testing.T) {
	dbPath := traceDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"fact without run", []string{"--db", dbPath, "--fact", "Locked"}, "--fact requires --run"},
		{"unknown run", []string{"--db", dbPath, "--run", "nope"}, "run not found: nope"},
		{"unknown run with fact", []string{"--db", dbPath, "--run", "nope", "--fact", "Locked"}, "run not found: nope"},
		{"bad where", []string{"--db", dbPath, "--run", "run-c", "--fact", "Locked", "--where", "l"}, "want field=value"},
		{"missing database", []string{"--db", filepath.Join(t.TempDir(), "none.db")}, "database not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewTraceCommand(textOpts()), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestFactPattern(t *testing.T) {
	p, err := factPattern("Locked", []string{"l=9", "name=x", "ok=true"})
	require.NoError(t, err)
	assert.Equal(t, "Locked", p.Fact)
	assert.Equal(t, ir.Int(9), p.Where["l"])
	assert.Equal(t, ir.String("x"), p.Where["name"])
	assert.Equal(t, ir.Bool(true), p.Where["ok"])

	p, err = factPattern("Locked", nil)
	require.NoError(t, err)
	assert.Nil(t, p.Where)

	_, err = factPattern("Locked", []string{"=1"})
	assert.Error(t, err)
}
