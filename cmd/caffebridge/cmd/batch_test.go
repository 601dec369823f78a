package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/testutil"
)

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		require.NoError(t, source.Save(filepath.Join(dir, name), testutil.TinyNet(t, 1)))
	}

	out, stderr, err := execute(t, "batch", dir, "--workers", "2", "--format", "json", "--stats")
	require.NoError(t, err)

	var doc struct {
		Snapshots []struct {
			File  string `json:"file"`
			Error string `json:"error"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Snapshots, 2)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), doc.Snapshots[0].File)
	assert.Empty(t, doc.Snapshots[1].Error)
	assert.Contains(t, stderr, "Total snapshots: 2")
}

func TestBatchCommand_ModelsDirDefault(t *testing.T) {
	modelsDir := t.TempDir()
	snapDir := filepath.Join(modelsDir, models.SnapshotsSubdir)
	require.NoError(t, os.MkdirAll(snapDir, 0o755))
	require.NoError(t, source.Save(filepath.Join(snapDir, "tiny.yaml"), testutil.TinyNet(t, 1)))

	out, _, err := execute(t, "batch", "--models-dir", modelsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "# "+filepath.Join(snapDir, "tiny.yaml"))

	out, _, err = execute(t, "batch", "tiny", "--models-dir", modelsDir, "--no-validate")
	require.NoError(t, err)
	assert.Contains(t, out, "tiny")
}

func TestBatchCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, source.Save(filepath.Join(dir, "good.yaml"), testutil.TinyNet(t, 1)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("layers: [x"), 0o600))

	out, _, err := execute(t, "batch", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 snapshot(s) failed")
	assert.Contains(t, out, "good.yaml")

	_, _, err = execute(t, "batch", dir, "--exclude", "bad.yaml")
	require.NoError(t, err)

	_, _, err = execute(t, "batch", filepath.Join(dir, "nothing-here"))
	require.Error(t, err)
}

func TestBatchCommand_FailOnMismatch(t *testing.T) {
	path := tinySnapshot(t, func(net *source.Net) {
		testutil.Perturb(t, net, layerIndex(net, "conv2"), 3, 2e-4)
	})

	_, _, err := execute(t, "batch", path)
	require.NoError(t, err)

	_, _, err = execute(t, "batch", path, "--fail-on-mismatch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 layer(s) mismatched")

	_, _, err = execute(t, "batch", path, "--fail-on-mismatch", "--policy", "lenient")
	require.NoError(t, err)
}
