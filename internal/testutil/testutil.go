// Package testutil holds helpers shared by package tests: project paths
// and synthetic snapshots written to temporary directories.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/synth"
)

// GetProjectRoot returns the project root directory by finding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}
	dir := filepath.Dir(filename)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("could not find go.mod file starting from %s", filepath.Dir(filename))
}

// GetTestDataDir returns the path to the testdata directory.
func GetTestDataDir(t *testing.T) string {
	t.Helper()

	root, err := GetProjectRoot()
	require.NoError(t, err, "Failed to find project root")
	return filepath.Join(root, "testdata")
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// TinyNet generates the tiny synthetic network with recorded activations.
func TinyNet(t *testing.T, seed uint64) *source.Net {
	t.Helper()

	net, err := synth.Tiny(synth.Options{Seed: seed})
	require.NoError(t, err, "Failed to generate tiny network")
	return net
}

// WriteSnapshot saves net as name.yaml in a fresh temporary directory and
// returns the file path.
func WriteSnapshot(t *testing.T, name string, net *source.Net) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".yaml")
	require.NoError(t, source.Save(path, net), "Failed to write snapshot")
	return path
}

// Perturb adds delta to one recorded output value of layer i.
func Perturb(t *testing.T, net *source.Net, i, index int, delta float32) {
	t.Helper()

	rec, err := net.Layer(i)
	require.NoError(t, err)
	require.NotNil(t, rec.Top, "layer %d has no recorded output", i)
	require.Less(t, index, len(rec.Top.Data))

	// the top blob may share storage with the next layer's bottom
	data := append([]float32(nil), rec.Top.Data...)
	data[index] += delta
	rec.Top = &source.Blob{Shape: rec.Top.Shape, Data: data}
}

// AppendLayer adds a layer record after the last one, for tests that need
// a layer the synthetic topologies do not produce.
func AppendLayer(net *source.Net, rec source.LayerRecord) {
	net.Layers = append(net.Layers, rec)
}
