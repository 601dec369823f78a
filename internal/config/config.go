// Package config loads caffebridge settings from configuration files,
// environment variables and command-line flags.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/caffebridge/internal/benchmark"
	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
	"github.com/MeKo-Tech/caffebridge/internal/validate"
)

// Config represents the complete configuration for caffebridge. It covers
// every command (convert, validate, bench, batch, inspect).
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Conversion ConversionConfig `mapstructure:"conversion" yaml:"conversion" json:"conversion"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation" json:"validation"`
	Benchmark  BenchmarkConfig  `mapstructure:"benchmark" yaml:"benchmark" json:"benchmark"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// ConversionConfig tunes how degraded source networks are handled.
type ConversionConfig struct {
	// SkipUnsupported reports unsupported layer kinds and carries on
	// instead of stopping the run.
	SkipUnsupported bool `mapstructure:"skip_unsupported" yaml:"skip_unsupported" json:"skip_unsupported"`
	AllowScalarBias bool `mapstructure:"allow_scalar_bias" yaml:"allow_scalar_bias" json:"allow_scalar_bias"`
}

// ValidationConfig contains cross-runtime validation settings.
type ValidationConfig struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Threshold     float64  `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Policy        string   `mapstructure:"policy" yaml:"policy" json:"policy"`
	PolicyVersion string   `mapstructure:"policy_version" yaml:"policy_version" json:"policy_version"`
	ExemptKinds   []string `mapstructure:"exempt_kinds" yaml:"exempt_kinds" json:"exempt_kinds"`
}

// BenchmarkConfig contains forward-pass timing settings.
type BenchmarkConfig struct {
	Enabled          bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Iterations       int  `mapstructure:"iterations" yaml:"iterations" json:"iterations"`
	WarmupIterations int  `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
}

// OutputConfig contains report formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file" json:"file"`
}

// BatchConfig contains multi-snapshot settings. Zero workers means one per CPU.
type BatchConfig struct {
	Workers   int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include   []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	bench := benchmark.DefaultOptions()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Validation: ValidationConfig{
			Enabled:   true,
			Threshold: validate.DefaultThreshold,
			Policy:    validate.PolicyStrict,
		},
		Benchmark: BenchmarkConfig{
			Iterations:       bench.Iterations,
			WarmupIterations: bench.Warmup,
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json", "csv", "yaml"}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Validation.Threshold <= 0 {
		return fmt.Errorf("invalid validation.threshold: %g (must be positive)", c.Validation.Threshold)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Benchmark.Iterations <= 0 {
		return fmt.Errorf("invalid benchmark.iterations: %d (must be positive)", c.Benchmark.Iterations)
	}
	if c.Benchmark.WarmupIterations < 0 {
		return fmt.Errorf("invalid benchmark.warmup_iterations: %d (must not be negative)", c.Benchmark.WarmupIterations)
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("invalid batch.workers: %d (must not be negative)", c.Batch.Workers)
	}
	return nil
}

// Policy resolves the configured exempt policy.
func (c *Config) Policy() (validate.Policy, error) {
	p, err := validate.PolicyByName(c.Validation.Policy, c.Validation.PolicyVersion, c.Validation.ExemptKinds)
	if err != nil {
		return validate.Policy{}, fmt.Errorf("invalid validation policy: %w", err)
	}
	return p, nil
}

// ToPipelineConfig converts the config to the pipeline configuration format.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	policy, err := c.Policy()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Convert: convert.Options{
			AllowScalarBias: c.Conversion.AllowScalarBias,
		},
		SkipUnsupported: c.Conversion.SkipUnsupported,
		Validate:        c.Validation.Enabled,
		Threshold:       c.Validation.Threshold,
		Policy:          policy,
		Benchmark:       c.Benchmark.Enabled,
		Bench: benchmark.Options{
			Iterations: c.Benchmark.Iterations,
			Warmup:     c.Benchmark.WarmupIterations,
		},
	}, nil
}
