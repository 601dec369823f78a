package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
}

func TestDiscoverSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t,
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(dir, "nested", "c.yml"),
		filepath.Join(dir, "nested", "draft-d.yaml"),
	)

	files, err := discoverSnapshotFiles([]string{dir}, false, DefaultIncludePatterns, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.json")}, files)

	files, err = discoverSnapshotFiles([]string{dir}, true, DefaultIncludePatterns, []string{"draft-*"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "nested", "c.yml"),
	}, files)
}

func TestDiscoverSnapshotFiles_ExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.snapshot")
	touch(t, a)

	// explicit files bypass the include patterns and are deduplicated
	files, err := discoverSnapshotFiles([]string{a, a, dir}, false, DefaultIncludePatterns, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, files)

	files, err = discoverSnapshotFiles([]string{a}, false, nil, []string{"*.snapshot"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestShouldIncludeFile(t *testing.T) {
	tests := []struct {
		path    string
		include []string
		exclude []string
		want    bool
	}{
		{"net.yaml", DefaultIncludePatterns, nil, true},
		{"net.txt", DefaultIncludePatterns, nil, false},
		{"net.txt", nil, nil, true},
		{"dir/old-net.yaml", DefaultIncludePatterns, []string{"old-*"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldIncludeFile(tt.path, tt.include, tt.exclude))
		})
	}
}
