package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tracemon", cmd.Use)
	assert.Contains(t, cmd.Long, "Runtime verification")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "compile", "check", "serve", "emit", "replay", "trace", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		command string
		flags   []string
	}{
		{"compile", []string{"output"}},
		{"check", []string{"db", "run-id", "stop-on-error", "max-states", "print-steps"}},
		{"serve", []string{"db", "addr", "max-clients", "stop-on-error"}},
		{"emit", []string{"addr", "args", "arg", "timeout"}},
		{"replay", []string{"db", "run", "stop-on-error", "max-states"}},
		{"trace", []string{"db", "run", "monitor", "fact", "where", "select"}},
		{"test", []string{"scenarios", "update", "filter"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			for _, f := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(f), "flag --%s", f)
			}
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(t, cmd, "--format", "xml", "validate", specsDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootRunsSubcommand(t *testing.T) {
	cmd := NewRootCommand()
	out, err := execute(t, cmd, "validate", specsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "All specs valid")
}
