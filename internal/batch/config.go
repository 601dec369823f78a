package batch

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/metrics"
	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
)

// DefaultIncludePatterns match snapshot files.
var DefaultIncludePatterns = []string{"*.yaml", "*.yml", "*.json"}

// Config holds all configuration for batch processing.
type Config struct {
	// Pipeline settings shared by every snapshot.
	Pipeline pipeline.Config
	Metrics  *metrics.Recorder
	Logger   *slog.Logger

	// Parallel processing settings
	Workers int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Progress settings
	Progress         pipeline.ProgressCallback
	ProgressInterval time.Duration
}

// DefaultConfig returns a validating configuration with one worker per CPU.
func DefaultConfig() *Config {
	return &Config{
		Pipeline:         pipeline.DefaultConfig(),
		Workers:          runtime.NumCPU(),
		ProgressInterval: 100 * time.Millisecond,
	}
}

func (c *Config) includePatterns() []string {
	if len(c.IncludePatterns) == 0 {
		return DefaultIncludePatterns
	}
	return c.IncludePatterns
}

// workerCount clamps the worker count to [1, files].
func (c *Config) workerCount(files int) int {
	w := c.Workers
	if w < 1 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, files))
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Config) progress() pipeline.ProgressCallback {
	if c.Progress == nil {
		return pipeline.NoOpProgressCallback{}
	}
	return c.Progress
}
