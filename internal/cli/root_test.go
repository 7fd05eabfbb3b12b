package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/touchdelay/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "touchdelay", cmd.Use)
	assert.Contains(t, cmd.Long, "outermost scope")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "apply", "test", "trace", "scopes"}

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

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"apply", []string{"db", "backend", "redis", "schema", "max-passes"}},
		{"test", []string{"update", "filter", "schema"}},
		{"trace", []string{"db", "scope"}},
		{"scopes", []string{"db"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "--%s", name)
			}
		})
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadConfig(t *testing.T) {
	opts := &RootOptions{}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Backend)

	dir := t.TempDir()
	path := filepath.Join(dir, "touchdelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: data.db\nlog_level: warn\n"), 0644))

	opts.ConfigPath = path
	cfg, err = opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data.db"), cfg.Database)

	opts.ConfigPath = filepath.Join(dir, "missing.yaml")
	_, err = opts.loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogger_VerboseForcesDebug(t *testing.T) {
	cfg := config.Default()
	buf := &bytes.Buffer{}

	(&RootOptions{}).logger(cfg, buf).Debug("hidden")
	assert.Empty(t, buf.String())

	(&RootOptions{Verbose: true}).logger(cfg, buf).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
