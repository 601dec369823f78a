package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/caffebridge/internal/report"
)

// formatBatchResults formats the batch results in the specified format.
func formatBatchResults(items []*Item, format string) (string, error) {
	switch strings.ToLower(format) {
	case report.FormatJSON:
		return formatJSON(items)
	case report.FormatYAML:
		return formatYAML(items)
	case report.FormatCSV:
		return formatCSV(items)
	case "", report.FormatText:
		return formatText(items)
	default:
		return "", fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(report.Formats(), ", "))
	}
}

type batchDocument struct {
	Snapshots []*Item `json:"snapshots" yaml:"snapshots"`
}

func formatJSON(items []*Item) (string, error) {
	bts, err := json.MarshalIndent(batchDocument{Snapshots: items}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatYAML(items []*Item) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(batchDocument{Snapshots: items}); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// formatCSV prefixes every report row with the snapshot file and appends
// the snapshot error. Snapshots that failed to load get a single row with
// only those two columns filled.
func formatCSV(items []*Item) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	header := report.CSVHeader()
	if err := writer.Write(append(append([]string{"file"}, header...), "error")); err != nil {
		return "", err
	}

	for _, it := range items {
		if it.Report == nil {
			row := make([]string, len(header)+2)
			row[0], row[len(row)-1] = it.File, it.Error
			if err := writer.Write(row); err != nil {
				return "", err
			}
			continue
		}

		rendered, err := report.Format(it.Report, report.FormatCSV)
		if err != nil {
			return "", err
		}
		rows, err := csv.NewReader(strings.NewReader(rendered)).ReadAll()
		if err != nil {
			return "", err
		}
		for _, row := range rows[1:] {
			row = append(append([]string{it.File}, row...), it.Error)
			if err := writer.Write(row); err != nil {
				return "", err
			}
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(items []*Item) (string, error) {
	var output strings.Builder
	for i, it := range items {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", it.File))
		if it.Report == nil {
			output.WriteString(fmt.Sprintf("error: %s\n", it.Error))
			continue
		}
		if err := report.Write(&output, it.Report, report.FormatText); err != nil {
			return "", err
		}
		if it.Error != "" {
			output.WriteString(fmt.Sprintf("error: %s\n", it.Error))
		}
	}
	return output.String(), nil
}
