package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/caffebridge/internal/benchmark"
)

var benchCmd = &cobra.Command{
	Use:   "bench <snapshot>",
	Short: "Time the forward pass of every converted layer",
	Long: `Convert a network snapshot and time the target forward pass of every
layer that has a recorded input. Conversion and validation are not timed.
Layers are validated as well unless validation is disabled in the
configuration.

Examples:
  caffebridge bench caffenet
  caffebridge bench caffenet --iterations 50 --warmup 5 --format csv
  caffebridge bench caffenet --stats`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := runPipeline(cmd, args[0], modeBench)
		if stats, _ := cmd.Flags().GetBool("stats"); stats && rep != nil {
			var results []benchmark.Result
			for _, l := range rep.Layers {
				if l.Benchmark != nil {
					results = append(results, *l.Benchmark)
				}
			}
			benchmark.PrintResults(cmd.ErrOrStderr(), results)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)

	bindings := addConversionFlags(benchCmd)
	bindings = append(bindings, addOutputFlags(benchCmd)...)
	bindings = append(bindings, addValidationFlags(benchCmd)...)

	benchCmd.Flags().IntP("iterations", "n", 10, "timed iterations per layer")
	benchCmd.Flags().Int("warmup", 1, "untimed warmup iterations per layer")
	benchCmd.Flags().Bool("stats", false, "print per-layer timing statistics to stderr")
	commandBindings[benchCmd] = append(bindings,
		flagBinding{"benchmark.iterations", "iterations"},
		flagBinding{"benchmark.warmup_iterations", "warmup"},
	)
}
