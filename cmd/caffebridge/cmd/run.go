package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/caffebridge/internal/config"
	"github.com/MeKo-Tech/caffebridge/internal/metrics"
	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
	"github.com/MeKo-Tech/caffebridge/internal/report"
	"github.com/MeKo-Tech/caffebridge/internal/source"
)

// runMode selects which stages a command runs on top of conversion.
type runMode int

const (
	modeConvert runMode = iota
	modeValidate
	modeBench
)

func addConversionFlags(cmd *cobra.Command) []flagBinding {
	cmd.Flags().Bool("skip-unsupported", false, "report unsupported layer kinds and continue")
	cmd.Flags().Bool("allow-scalar-bias", false, "broadcast single-value bias blobs instead of failing")
	cmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	return []flagBinding{
		{"conversion.skip_unsupported", "skip-unsupported"},
		{"conversion.allow_scalar_bias", "allow-scalar-bias"},
	}
}

func addOutputFlags(cmd *cobra.Command) []flagBinding {
	cmd.Flags().StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics in text format to this file")
	return []flagBinding{
		{"output.format", "format"},
		{"output.file", "output"},
		{"metrics.file", "metrics-file"},
	}
}

func addValidationFlags(cmd *cobra.Command) []flagBinding {
	cmd.Flags().Float64("threshold", 1e-4, "absolute per-element tolerance")
	cmd.Flags().String("policy", "strict", "exempt policy (strict, lenient, custom)")
	cmd.Flags().String("policy-version", "", "version label of a custom exempt policy")
	cmd.Flags().StringSlice("exempt", nil, "layer kinds or source types exempt under a custom policy")
	return []flagBinding{
		{"validation.threshold", "threshold"},
		{"validation.policy", "policy"},
		{"validation.policy_version", "policy-version"},
		{"validation.exempt_kinds", "exempt"},
	}
}

// loadSnapshot resolves name against the models directory and loads it.
func loadSnapshot(cfg *config.Config, name string) (*source.Net, string, error) {
	path, err := models.ResolveSnapshotPath(models.GetModelsDir(cfg.ModelsDir), name)
	if err != nil {
		return nil, "", err
	}
	net, err := source.Load(path)
	if err != nil {
		return nil, path, err
	}
	slog.Debug("loaded snapshot", "path", path, "network", net.Name, "layers", net.Len())
	return net, path, nil
}

// runPipeline converts the snapshot named by arg, writes the report and
// the optional metrics file. The pipeline error, if any, is returned after
// the partial report was written.
func runPipeline(cmd *cobra.Command, arg string, mode runMode) (*pipeline.Report, error) {
	cfg := GetConfig()
	net, path, err := loadSnapshot(cfg, arg)
	if err != nil {
		return nil, err
	}

	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	switch mode {
	case modeConvert:
		pcfg.Validate = false
		pcfg.Benchmark = false
		pcfg.KeepSpecs = true
	case modeValidate:
		pcfg.Validate = true
		pcfg.Benchmark = false
	case modeBench:
		pcfg.Benchmark = true
	}

	var rec *metrics.Recorder
	if cfg.Metrics.File != "" {
		rec = metrics.New()
	}
	b := pipeline.NewBuilder().WithConfig(pcfg).WithMetrics(rec).WithLogger(slog.Default())
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		b = b.WithProgress(pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), net.Name+": "))
	}
	p, err := b.Build()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rep, runErr := p.Run(ctx, net)
	rep.Source = path

	if err := writeReport(cmd, cfg, rep); err != nil {
		return rep, err
	}
	if err := rec.WriteTextfile(cfg.Metrics.File); err != nil {
		return rep, err
	}
	return rep, runErr
}

// writeReport renders rep to the configured output file or stdout.
func writeReport(cmd *cobra.Command, cfg *config.Config, rep *pipeline.Report) error {
	var w io.Writer = cmd.OutOrStdout()
	if cfg.Output.File != "" {
		f, err := os.Create(cfg.Output.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := report.Write(w, rep, cfg.Output.Format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if cfg.Output.File != "" {
		slog.Info("report written", "file", cfg.Output.File)
	}
	return nil
}
