// Package report renders pipeline reports as text, JSON, CSV or YAML.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Formats lists every supported format.
func Formats() []string { return []string{FormatText, FormatJSON, FormatCSV, FormatYAML} }

// Format renders r in the given format. An empty format means text.
func Format(r *pipeline.Report, format string) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, r, format); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Write renders r to w.
func Write(w io.Writer, r *pipeline.Report, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return writeText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatCSV:
		return writeCSV(w, r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

// outcome is the one-word result column shared by text and CSV.
func outcome(l pipeline.LayerResult) string {
	switch {
	case l.Status != pipeline.StatusConverted:
		return l.ErrorCategory
	case l.ValidationError != "":
		return "validation_error"
	case l.Verdict == nil:
		return "unchecked"
	default:
		return l.Verdict.String()
	}
}

func writeText(w io.Writer, r *pipeline.Report) error {
	header := "network: " + r.Network
	if r.PolicyVersion != "" {
		header += fmt.Sprintf("  policy: %s  threshold: %g", r.PolicyVersion, r.Threshold)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "IDX\tNAME\tTYPE\tIN\tOUT\tSTATUS\tRESULT\tFORWARD")
	for _, l := range r.Layers {
		fwd := "-"
		if l.Benchmark != nil && l.Benchmark.Iterations > 0 {
			fwd = l.Benchmark.Mean().String()
		}
		in, out := "-", "-"
		if l.Status == pipeline.StatusConverted {
			in, out = l.InputShape.String(), l.OutputShape.String()
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Index, l.Name, l.Type, in, out, l.Status, outcome(l), fwd)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, l := range r.Layers {
		switch {
		case l.Error != "":
			_, _ = fmt.Fprintf(w, "layer %d %s: %s\n", l.Index, l.Status, l.Error)
		case l.ValidationError != "":
			_, _ = fmt.Fprintf(w, "layer %d validation: %s\n", l.Index, l.ValidationError)
		}
	}

	s := r.Summary
	_, err := fmt.Fprintf(w, "summary: %d layers, %d converted, %d skipped, %d failed; %d verified, %d mismatched, %d exempt, %d unchecked\n",
		s.Layers, s.Converted, s.Skipped, s.Failed, s.Verified, s.Mismatched, s.Exempt, s.Unchecked)
	return err
}

// CSVHeader returns the column names of the CSV format.
func CSVHeader() []string { return append([]string(nil), csvHeader...) }

var csvHeader = []string{
	"index", "name", "type", "kind", "input_shape", "output_shape", "connection",
	"status", "error_category", "result", "max_diff", "first_offending_index",
	"threshold", "policy_version", "forward_mean_ns",
}

func writeCSV(w io.Writer, r *pipeline.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, l := range r.Layers {
		maxDiff, first := "", ""
		result := outcome(l)
		if l.Verdict != nil {
			maxDiff = strconv.FormatFloat(l.Verdict.Diff.MaxDiff, 'g', 6, 64)
			first = strconv.Itoa(l.Verdict.Diff.FirstIndex)
			result = l.Verdict.Status.String()
		}
		fwd := ""
		if l.Benchmark != nil && l.Benchmark.Iterations > 0 {
			fwd = strconv.FormatInt(l.Benchmark.Mean().Nanoseconds(), 10)
		}
		in, out := "", ""
		if l.Status == pipeline.StatusConverted {
			in, out = l.InputShape.String(), l.OutputShape.String()
		}
		row := []string{
			strconv.Itoa(l.Index), l.Name, l.Type, l.Kind, in, out, l.Connection,
			string(l.Status), l.ErrorCategory, result, maxDiff, first,
			strconv.FormatFloat(r.Threshold, 'g', -1, 64), r.PolicyVersion, fwd,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
