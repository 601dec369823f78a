// Command gen-snapshot writes synthetic network snapshots with recorded
// activations from the reference forward pass.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/synth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := synth.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "gen-snapshot",
		Short: "Generate synthetic network snapshots",
		Long: `Generate a synthetic network snapshot with random weights and the outputs
of a reference forward pass recorded for every layer.

Examples:
  gen-snapshot                                  # scaled-down CaffeNet
  gen-snapshot --topology tiny --seed 7
  gen-snapshot --topology tiny --perturb conv2:3:2e-4 -o tiny-broken.yaml`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().String("topology", "caffenet", "network topology ("+strings.Join(synth.Topologies(), ", ")+")")
	cmd.Flags().Uint64("seed", defaults.Seed, "random seed for weights and input")
	cmd.Flags().Int("batch", defaults.Batch, "samples in the recorded forward pass")
	cmd.Flags().Int("channel-divisor", defaults.ChannelDivisor, "divide CaffeNet channel counts by this factor")
	cmd.Flags().Int("input-size", defaults.InputSize, "CaffeNet spatial input size")
	cmd.Flags().StringP("output", "o", "", "output file (default: <models-dir>/snapshots/<topology>.yaml)")
	cmd.Flags().String("models-dir", "", "models directory used for the default output path")
	cmd.Flags().StringSlice("perturb", nil, "add a delta to a recorded output, as layer:index:delta")
	cmd.Flags().BoolP("verbose", "v", false, "verbose output")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	topology, _ := cmd.Flags().GetString("topology")
	var opts synth.Options
	opts.Seed, _ = cmd.Flags().GetUint64("seed")
	opts.Batch, _ = cmd.Flags().GetInt("batch")
	opts.ChannelDivisor, _ = cmd.Flags().GetInt("channel-divisor")
	opts.InputSize, _ = cmd.Flags().GetInt("input-size")

	slog.Debug("generating snapshot", "topology", topology, "seed", opts.Seed, "batch", opts.Batch)
	net, err := synth.Generate(topology, opts)
	if err != nil {
		return err
	}

	perturbs, _ := cmd.Flags().GetStringSlice("perturb")
	for _, p := range perturbs {
		if err := applyPerturbation(net, p); err != nil {
			return err
		}
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		modelsDir, _ := cmd.Flags().GetString("models-dir")
		dir := filepath.Join(models.GetModelsDir(modelsDir), models.SnapshotsSubdir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		output = filepath.Join(dir, topology+".yaml")
	}
	if err := source.Save(output, net); err != nil {
		return err
	}
	slog.Info("snapshot written", "file", output, "network", net.Name, "layers", net.Len())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// applyPerturbation parses "layer:index:delta" and adds delta to the
// recorded output of the named layer.
func applyPerturbation(net *source.Net, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("invalid perturbation %q (want layer:index:delta)", spec)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid perturbation index %q: %w", parts[1], err)
	}
	delta, err := strconv.ParseFloat(parts[2], 32)
	if err != nil {
		return fmt.Errorf("invalid perturbation delta %q: %w", parts[2], err)
	}
	for i := range net.Layers {
		rec := &net.Layers[i]
		if rec.Name != parts[0] {
			continue
		}
		if rec.Top == nil || index < 0 || index >= len(rec.Top.Data) {
			return fmt.Errorf("layer %s has no recorded output value %d", rec.Name, index)
		}
		// copy so the next layer's recorded input is left alone
		data := append([]float32(nil), rec.Top.Data...)
		data[index] += float32(delta)
		rec.Top = &source.Blob{Shape: rec.Top.Shape, Data: data}
		slog.Debug("perturbed recorded output", "layer", rec.Name, "index", index, "delta", delta)
		return nil
	}
	return fmt.Errorf("no layer named %q", parts[0])
}
