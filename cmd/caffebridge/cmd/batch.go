package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/caffebridge/internal/batch"
	"github.com/MeKo-Tech/caffebridge/internal/config"
	"github.com/MeKo-Tech/caffebridge/internal/metrics"
	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch [snapshot|dir]...",
	Short: "Convert and validate many snapshots in parallel",
	Long: `Run the conversion pipeline over several snapshots at once. Arguments
may be snapshot files, directories or snapshot names resolved against the
models directory. Without arguments every snapshot in the models directory
is processed.

A snapshot that fails to load or stops on a structural error is reported
and the others carry on; the command then exits non-zero.

Examples:
  caffebridge batch
  caffebridge batch ./snapshots --recursive --workers 4 --format csv
  caffebridge batch caffenet tiny --exclude 'draft-*' --stats`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	bindings := addConversionFlags(batchCmd)
	bindings = append(bindings, addOutputFlags(batchCmd)...)
	bindings = append(bindings, addValidationFlags(batchCmd)...)

	batchCmd.Flags().IntP("workers", "j", 0, "parallel snapshots (0 = one per CPU)")
	batchCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	batchCmd.Flags().StringSlice("include", nil, "file patterns to include (default *.yaml, *.yml, *.json)")
	batchCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")
	batchCmd.Flags().Bool("no-validate", false, "convert only")
	batchCmd.Flags().Bool("stats", false, "print processing statistics to stderr")
	batchCmd.Flags().Bool("fail-on-mismatch", false, "exit non-zero when any layer mismatches")
	commandBindings[batchCmd] = append(bindings,
		flagBinding{"batch.workers", "workers"},
		flagBinding{"batch.recursive", "recursive"},
		flagBinding{"batch.include", "include"},
		flagBinding{"batch.exclude", "exclude"},
	)
}

// batchInputs maps arguments to paths. Names that are neither files nor
// directories go through snapshot resolution.
func batchInputs(cfg *config.Config, args []string) ([]string, error) {
	modelsDir := models.GetModelsDir(cfg.ModelsDir)
	if len(args) == 0 {
		return []string{filepath.Join(modelsDir, models.SnapshotsSubdir)}, nil
	}
	inputs := make([]string, 0, len(args))
	for _, arg := range args {
		if _, err := os.Stat(arg); err == nil {
			inputs = append(inputs, arg)
			continue
		}
		path, err := models.ResolveSnapshotPath(modelsDir, arg)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, path)
	}
	return inputs, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	inputs, err := batchInputs(cfg, args)
	if err != nil {
		return err
	}

	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}
	if noValidate, _ := cmd.Flags().GetBool("no-validate"); noValidate {
		pcfg.Validate = false
	}

	bcfg := batch.DefaultConfig()
	bcfg.Pipeline = pcfg
	bcfg.Workers = cfg.Batch.Workers
	bcfg.Recursive = cfg.Batch.Recursive
	bcfg.IncludePatterns = cfg.Batch.Include
	bcfg.ExcludePatterns = cfg.Batch.Exclude
	bcfg.Logger = slog.Default()
	if cfg.Metrics.File != "" {
		bcfg.Metrics = metrics.New()
	}
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		bcfg.Progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "").WithUnit("snapshot", "snapshots")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := batch.ProcessBatch(ctx, inputs, bcfg)
	if err != nil {
		return err
	}

	if err := writeBatchResults(cmd, cfg, res); err != nil {
		return err
	}
	if err := bcfg.Metrics.WriteTextfile(cfg.Metrics.File); err != nil {
		return err
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		res.PrintStats(cmd.ErrOrStderr())
	}

	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d snapshot(s) failed", len(failed))
	}
	failOnMismatch, _ := cmd.Flags().GetBool("fail-on-mismatch")
	if n := res.Stats().Mismatched; failOnMismatch && n > 0 {
		return fmt.Errorf("%d layer(s) mismatched", n)
	}
	return nil
}

func writeBatchResults(cmd *cobra.Command, cfg *config.Config, res *batch.Result) error {
	var w io.Writer = cmd.OutOrStdout()
	if cfg.Output.File != "" {
		f, err := os.Create(cfg.Output.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := res.WriteResults(w, cfg.Output.Format); err != nil {
		return err
	}
	if cfg.Output.File != "" {
		slog.Info("batch results written", "file", cfg.Output.File, "snapshots", len(res.Items))
	}
	return nil
}
