package cmd

import (
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <snapshot>",
	Short: "Convert every layer of a network snapshot",
	Long: `Convert every layer of a network snapshot into a target layer.

Each layer is normalized into its canonical spec, its output shape is
inferred and checked against the recorded top blob, its weights are
rearranged into the target layout and the target layer is built. The
canonical specs are included in json and yaml output.

The snapshot is a file path or a name looked up in the models directory.

Examples:
  caffebridge convert caffenet
  caffebridge convert models/snapshots/tiny.yaml --format yaml
  caffebridge convert caffenet --skip-unsupported`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runPipeline(cmd, args[0], modeConvert)
		return err
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	bindings := addConversionFlags(convertCmd)
	bindings = append(bindings, addOutputFlags(convertCmd)...)
	commandBindings[convertCmd] = bindings
}
