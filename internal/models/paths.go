// Package models locates network snapshots on disk.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "CAFFEBRIDGE_MODELS_DIR"

// SnapshotsSubdir holds snapshots in the organized layout.
const SnapshotsSubdir = "snapshots"

// snapshotExts are tried in order when a name has no extension.
var snapshotExts = []string{".yaml", ".yml"}

// ErrSnapshotNotFound is returned when no candidate path exists.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo describes one snapshot file found in a models directory.
type SnapshotInfo struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size" yaml:"size"`
}

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
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
	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory path from various sources
// Priority: 1. Explicit modelsDir parameter, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// candidates lists the paths tried for name, in order.
func candidates(modelsDir, name string) []string {
	names := []string{name}
	if filepath.Ext(name) == "" {
		for _, ext := range snapshotExts {
			names = append(names, name+ext)
		}
	}
	out := make([]string, 0, 3*len(names))
	out = append(out, names...)
	if filepath.IsAbs(name) {
		return out
	}
	base := GetModelsDir(modelsDir)
	for _, n := range names {
		out = append(out, filepath.Join(base, SnapshotsSubdir, n), filepath.Join(base, n))
	}
	return out
}

// ResolveSnapshotPath turns a snapshot argument into an existing file path.
// The argument is tried as given, then under <models>/snapshots and
// <models>, each with and without a .yaml/.yml extension.
func ResolveSnapshotPath(modelsDir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("empty snapshot name")
	}
	tried := candidates(modelsDir, name)
	for _, p := range tried {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s (tried %s)", ErrSnapshotNotFound, name, strings.Join(tried, ", "))
}

// ListSnapshots returns the snapshot files in the organized and flat
// layouts of a models directory, sorted by name.
func ListSnapshots(modelsDir string) ([]SnapshotInfo, error) {
	base := GetModelsDir(modelsDir)
	seen := make(map[string]bool)
	var out []SnapshotInfo
	for _, dir := range []string{filepath.Join(base, SnapshotsSubdir), base} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ext)
			if seen[name] {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			seen[name] = true
			out = append(out, SnapshotInfo{Name: name, Path: filepath.Join(dir, e.Name()), Size: info.Size()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
