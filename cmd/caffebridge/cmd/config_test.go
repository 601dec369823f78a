package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitAndShow(t *testing.T) {
	file := filepath.Join(t.TempDir(), "caffebridge.yaml")

	out, _, err := execute(t, "config", "init", file)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "threshold")

	_, _, err = execute(t, "config", "init", file)
	require.Error(t, err)
	assert.ErrorContains(t, err, "already exists")

	_, _, err = execute(t, "config", "init", file, "--force")
	require.NoError(t, err)

	out, _, err = execute(t, "--config", file, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# config file: "+file)
	assert.Contains(t, out, "log_level: info")
}

func TestConfigShow_Raw(t *testing.T) {
	file := filepath.Join(t.TempDir(), "caffebridge.yaml")
	require.NoError(t, os.WriteFile(file, []byte("batch:\n  workers: 3\n"), 0o600))
	t.Setenv("CAFFEBRIDGE_VALIDATION_POLICY", "lenient")

	out, _, err := execute(t, "--config", file, "config", "show", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "workers: 3")
	assert.Contains(t, out, "policy: lenient")
	assert.Contains(t, out, "skip_unsupported: false")
}

func TestConfigShow_InvalidConfigWarns(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("validation:\n  threshold: -1\n"), 0o600))

	out, stderr, err := execute(t, "--config", file, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "threshold: -1")
	assert.Contains(t, stderr, "invalid validation.threshold")

	_, _, err = execute(t, "--config", file, "inspect")
	require.Error(t, err)
}

func TestConfigFileDrivesCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "caffebridge.yaml")
	require.NoError(t, os.WriteFile(file, []byte("validation:\n  policy: lenient\noutput:\n  format: json\n"), 0o600))
	path := tinySnapshot(t, nil)

	out, _, err := execute(t, "--config", file, "validate", path)
	require.NoError(t, err)
	rep := decodeReport(t, out)
	assert.Equal(t, "lenient/v1", rep.PolicyVersion)

	// flags win over the file
	out, _, err = execute(t, "--config", file, "validate", path, "--policy", "strict")
	require.NoError(t, err)
	rep = decodeReport(t, out)
	assert.Equal(t, "strict/v1", rep.PolicyVersion)
}

func TestConfigPaths(t *testing.T) {
	out, _, err := execute(t, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/caffebridge")
}
