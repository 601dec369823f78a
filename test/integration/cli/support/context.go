package support

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/models"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastStderr    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir string
	TempDir    string
	ModelsDir  string
	EnvVars    map[string]string

	// LastFile is the file named by the last file step.
	LastFile string

	// Test artifacts
	CreatedFiles []string
}

// NewTestContext creates a new test context. Every scenario runs in its
// own temporary directory with its own models directory, so configuration
// files and snapshots never leak between scenarios.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "caffebridge-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	modelsDir := filepath.Join(tempDir, "models")
	if err := os.MkdirAll(filepath.Join(modelsDir, models.SnapshotsSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	ctx := &TestContext{
		WorkingDir: tempDir,
		TempDir:    tempDir,
		ModelsDir:  modelsDir,
		EnvVars: map[string]string{
			"HOME":              tempDir,
			"XDG_CONFIG_HOME":   filepath.Join(tempDir, ".config"),
			models.EnvModelsDir: modelsDir,
		},
	}
	return ctx, nil
}

// Cleanup removes all temporary files and directories created during tests.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	for _, file := range testCtx.CreatedFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove file %s: %w", file, err))
		}
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// AddEnvVar sets an environment variable for command execution.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars[name] = value
}

// TrackFile adds a file to be cleaned up after tests.
func (testCtx *TestContext) TrackFile(filename string) {
	testCtx.CreatedFiles = append(testCtx.CreatedFiles, testCtx.resolvePath(filename))
}

// SnapshotPath returns where the snapshot called name is stored.
func (testCtx *TestContext) SnapshotPath(name string) string {
	return filepath.Join(testCtx.ModelsDir, models.SnapshotsSubdir, name+".yaml")
}

func (testCtx *TestContext) resolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.WorkingDir, name)
}
