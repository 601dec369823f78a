package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/source"
)

// layerSummary is one row of the inspect listing.
type layerSummary struct {
	Index  int     `json:"index" yaml:"index"`
	Name   string  `json:"name" yaml:"name"`
	Type   string  `json:"type" yaml:"type"`
	Kind   string  `json:"kind" yaml:"kind"`
	Bottom []int   `json:"bottom,omitempty" yaml:"bottom,flow,omitempty"`
	Top    []int   `json:"top,omitempty" yaml:"top,flow,omitempty"`
	Blobs  [][]int `json:"blobs,omitempty" yaml:"blobs,flow,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [snapshot]",
	Short: "List the layers of a snapshot, or the available snapshots",
	Long: `List the layers of a network snapshot with their recorded blob shapes and
the layer kind they convert to. Without an argument, list the snapshots in
the models directory.

Examples:
  caffebridge inspect
  caffebridge inspect caffenet
  caffebridge inspect caffenet --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			return listSnapshots(out, cfg.ModelsDir)
		}
		net, _, err := loadSnapshot(cfg, args[0])
		if err != nil {
			return err
		}
		return writeLayers(out, net, format)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringP("format", "f", "text", "output format (text, json, yaml)")
}

func listSnapshots(w io.Writer, modelsDir string) error {
	snaps, err := models.ListSnapshots(modelsDir)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		_, _ = fmt.Fprintf(w, "no snapshots in %s\n", models.GetModelsDir(modelsDir))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tPATH")
	for _, s := range snaps {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, s.Size, s.Path)
	}
	return tw.Flush()
}

func summarizeLayers(net *source.Net) []layerSummary {
	rows := make([]layerSummary, 0, net.Len())
	for i, rec := range net.Layers {
		row := layerSummary{Index: i, Name: rec.Name, Type: rec.Type, Kind: "-"}
		if k, ok := convert.Lookup(rec.Type); ok {
			row.Kind = k.String()
		} else if i > 0 {
			row.Kind = "unsupported"
		}
		if rec.Bottom != nil {
			row.Bottom = rec.Bottom.Shape
		}
		if rec.Top != nil {
			row.Top = rec.Top.Shape
		}
		for _, b := range rec.Blobs {
			row.Blobs = append(row.Blobs, b.Shape)
		}
		rows = append(rows, row)
	}
	return rows
}

func writeLayers(w io.Writer, net *source.Net, format string) error {
	rows := summarizeLayers(net)
	switch strings.ToLower(format) {
	case "", "text":
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or yaml)", format)
	}

	_, _ = fmt.Fprintf(w, "network: %s  layers: %d\n", net.Name, net.Len())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "IDX\tNAME\tTYPE\tKIND\tBOTTOM\tTOP\tBLOBS")
	for _, r := range rows {
		blobs := make([]string, len(r.Blobs))
		for i, b := range r.Blobs {
			blobs[i] = shapeString(b)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Index, r.Name, r.Type, r.Kind, shapeString(r.Bottom), shapeString(r.Top), strings.Join(blobs, " "))
	}
	return tw.Flush()
}

func shapeString(s []int) string {
	if len(s) == 0 {
		return "-"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
