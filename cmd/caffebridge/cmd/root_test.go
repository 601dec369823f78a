package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/testutil"
)

// execute runs the root command in-process and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	ResetFlags()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// tinySnapshot writes the tiny network, optionally modified, to a temp file.
func tinySnapshot(t *testing.T, modify func(*source.Net)) string {
	t.Helper()
	net := testutil.TinyNet(t, 1)
	if modify != nil {
		modify(net)
	}
	return testutil.WriteSnapshot(t, "tiny", net)
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "caffebridge", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "canonical layer spec")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "caffebridge version dev")
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"convert", "validate", "bench", "batch", "inspect", "config"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, _, err := execute(t, "--no-such-flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommandInvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, "inspect", "--log-level", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestResetFlags(t *testing.T) {
	path := tinySnapshot(t, nil)
	_, _, err := execute(t, "validate", path, "--policy", "lenient", "--exempt", "Pooling")
	require.NoError(t, err)

	ResetFlags()
	policy, _ := validateCmd.Flags().GetString("policy")
	exempt, _ := validateCmd.Flags().GetStringSlice("exempt")
	assert.Equal(t, "strict", policy)
	assert.Empty(t, exempt)
	assert.False(t, validateCmd.Flags().Changed("policy"))
}
