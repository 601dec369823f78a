package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0o644))
}

func TestGetModelsDir(t *testing.T) {
	tests := []struct {
		name        string
		explicitDir string
		envVar      string
		expected    string
	}{
		{name: "explicit wins", explicitDir: "/explicit", envVar: "/env", expected: "/explicit"},
		{name: "environment", envVar: "/env", expected: "/env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvModelsDir, tt.envVar)
			assert.Equal(t, tt.expected, GetModelsDir(tt.explicitDir))
		})
	}

	t.Run("project root default", func(t *testing.T) {
		t.Setenv(EnvModelsDir, "")
		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, DefaultModelsDir), GetModelsDir(""))
	})
}

func TestResolveSnapshotPath(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, SnapshotsSubdir, "caffenet.yaml"))
	touch(t, filepath.Join(dir, "flat.yml"))
	direct := filepath.Join(dir, "direct.yaml")
	touch(t, direct)

	tests := []struct {
		name string
		arg  string
		want string
	}{
		{name: "organized without extension", arg: "caffenet", want: filepath.Join(dir, SnapshotsSubdir, "caffenet.yaml")},
		{name: "flat yml", arg: "flat", want: filepath.Join(dir, "flat.yml")},
		{name: "absolute path", arg: direct, want: direct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSnapshotPath(dir, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ResolveSnapshotPath(dir, "missing")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.Contains(t, err.Error(), "missing.yaml")

	_, err = ResolveSnapshotPath(dir, " ")
	assert.Error(t, err)
}

func TestListSnapshots(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, SnapshotsSubdir, "b.yaml"))
	touch(t, filepath.Join(dir, "a.yml"))
	touch(t, filepath.Join(dir, "b.yaml")) // shadowed by the organized copy
	touch(t, filepath.Join(dir, "notes.txt"))

	got, err := ListSnapshots(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
	assert.Equal(t, filepath.Join(dir, SnapshotsSubdir, "b.yaml"), got[1].Path)
	assert.Positive(t, got[0].Size)

	empty, err := ListSnapshots(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
