package config

import (
	"strings"
	"testing"

	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/validate"
)

const infoLevel = "info"

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelsDir != models.DefaultModelsDir {
		t.Errorf("Expected models_dir %s, got %s", models.DefaultModelsDir, cfg.ModelsDir)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Conversion.SkipUnsupported || cfg.Conversion.AllowScalarBias {
		t.Error("Expected conversion leniency to be off by default")
	}
	if !cfg.Validation.Enabled {
		t.Error("Expected validation to be enabled")
	}
	if cfg.Validation.Threshold != validate.DefaultThreshold {
		t.Errorf("Expected threshold %g, got %g", validate.DefaultThreshold, cfg.Validation.Threshold)
	}
	if cfg.Validation.Policy != validate.PolicyStrict {
		t.Errorf("Expected strict policy, got %s", cfg.Validation.Policy)
	}
	if cfg.Benchmark.Iterations != 10 || cfg.Benchmark.WarmupIterations != 1 {
		t.Errorf("Unexpected benchmark defaults: %+v", cfg.Benchmark)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Expected output format 'text', got %s", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

// TestConfigValidate tests validation of invalid settings.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"invalid format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"zero threshold", func(c *Config) { c.Validation.Threshold = 0 }, "validation.threshold"},
		{"unknown policy", func(c *Config) { c.Validation.Policy = "paranoid" }, "validation policy"},
		{"custom without version", func(c *Config) {
			c.Validation.Policy = validate.PolicyCustom
			c.Validation.ExemptKinds = []string{"Pooling"}
		}, "needs a version"},
		{"bad exempt kind", func(c *Config) {
			c.Validation.Policy = validate.PolicyCustom
			c.Validation.PolicyVersion = "v2"
			c.Validation.ExemptKinds = []string{"Deconvolution"}
		}, "exempt kinds"},
		{"zero iterations", func(c *Config) { c.Benchmark.Iterations = 0 }, "benchmark.iterations"},
		{"negative warmup", func(c *Config) { c.Benchmark.WarmupIterations = -1 }, "warmup_iterations"},
		{"negative workers", func(c *Config) { c.Batch.Workers = -2 }, "batch.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestToPipelineConfig tests the conversion to pipeline settings.
func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conversion.AllowScalarBias = true
	cfg.Conversion.SkipUnsupported = true
	cfg.Validation.Policy = validate.PolicyCustom
	cfg.Validation.PolicyVersion = "site/3"
	cfg.Validation.ExemptKinds = []string{"pooling"}
	cfg.Benchmark.Enabled = true
	cfg.Benchmark.Iterations = 3
	cfg.Benchmark.WarmupIterations = 0

	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		t.Fatalf("ToPipelineConfig() error: %v", err)
	}
	if !pc.Convert.AllowScalarBias || !pc.SkipUnsupported {
		t.Error("Expected conversion flags to carry over")
	}
	if !pc.Validate || pc.Threshold != validate.DefaultThreshold {
		t.Errorf("Unexpected validation settings: %v %g", pc.Validate, pc.Threshold)
	}
	if pc.Policy.Version != "site/3" || !pc.Policy.IsExempt(convert.Pooling) {
		t.Errorf("Unexpected policy: %s", pc.Policy)
	}
	if !pc.Benchmark || pc.Bench.Iterations != 3 || pc.Bench.Warmup != 0 {
		t.Errorf("Unexpected benchmark settings: %+v", pc.Bench)
	}

	cfg.Validation.PolicyVersion = ""
	if _, err := cfg.ToPipelineConfig(); err == nil {
		t.Error("Expected error for custom policy without version")
	}
}
