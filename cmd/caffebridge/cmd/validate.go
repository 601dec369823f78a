package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <snapshot>",
	Short: "Convert a network and compare every layer with the recorded outputs",
	Long: `Convert a network snapshot and run every converted layer on the recorded
source input. The output is compared elementwise with the recorded source
output using an absolute threshold.

Layers are reported as verified, mismatched or exempt. Exempt kinds are
still compared so their divergence shows up in the report. Mismatches do
not change the exit status unless --fail-on-mismatch is set.

Examples:
  caffebridge validate caffenet
  caffebridge validate caffenet --policy lenient --format json
  caffebridge validate caffenet --policy custom --policy-version site/2 --exempt Pooling,LRN`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := runPipeline(cmd, args[0], modeValidate)
		if err != nil {
			return err
		}
		failOnMismatch, _ := cmd.Flags().GetBool("fail-on-mismatch")
		if n := rep.Summary.Mismatched; failOnMismatch && n > 0 {
			return fmt.Errorf("%d layer(s) mismatched", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	bindings := addConversionFlags(validateCmd)
	bindings = append(bindings, addOutputFlags(validateCmd)...)
	bindings = append(bindings, addValidationFlags(validateCmd)...)
	commandBindings[validateCmd] = bindings

	validateCmd.Flags().Bool("fail-on-mismatch", false, "exit non-zero when any layer mismatches")
}
