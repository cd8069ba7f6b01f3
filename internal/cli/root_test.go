package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "omnibus", cmd.Use)
	assert.Contains(t, cmd.Long, "atomically")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "validate", "exec", "balances", "keygen", "test"}

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
	t.Setenv("OMNIBUS_DB", "")
	t.Setenv("OMNIBUS_FORMAT", "")

	cmd := NewRootCommand()

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "omnibus.db", dbFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("OMNIBUS_DB", "devnet.db")
	t.Setenv("OMNIBUS_FORMAT", "json")

	cmd := NewRootCommand()

	assert.Equal(t, "devnet.db", cmd.PersistentFlags().Lookup("db").DefValue)
	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestLoadConfigFromEnvFallbacks(t *testing.T) {
	t.Setenv("OMNIBUS_DB", "")
	t.Setenv("OMNIBUS_FORMAT", "")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, "omnibus.db", cfg.DBPath)
	assert.Equal(t, "text", cfg.Format)
}

func TestExecCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	execCmd, _, err := cmd.Find([]string{"exec"})
	require.NoError(t, err)

	keyFlag := execCmd.Flags().Lookup("key")
	require.NotNil(t, keyFlag)
	assert.Equal(t, "", keyFlag.DefValue)
}

func TestInitCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	initCmd, _, err := cmd.Find([]string{"init"})
	require.NoError(t, err)

	forceFlag := initCmd.Flags().Lookup("force")
	require.NotNil(t, forceFlag)
	assert.Equal(t, "false", forceFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestKeygenCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	keygenCmd, _, err := cmd.Find([]string{"keygen"})
	require.NoError(t, err)

	outFlag := keygenCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)

	registerFlag := keygenCmd.Flags().Lookup("register")
	require.NotNil(t, registerFlag)
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
	cmd.SetArgs([]string{"--format", "invalid", "validate", "market.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "batch aborted")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	wrapped := WrapExitError(ExitCommandError, "open", errors.New("no such file"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Contains(t, wrapped.Error(), "open: no such file")
}
