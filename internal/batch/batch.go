// Package batch runs the conversion pipeline over many snapshot files with
// a pool of workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ProcessBatch discovers snapshot files under paths and runs the pipeline
// over each of them. A snapshot that fails to load or aborts its run is
// recorded in its Item; only discovery and setup errors are returned.
func ProcessBatch(ctx context.Context, paths []string, config *Config) (*Result, error) {
	files, err := discoverSnapshotFiles(paths, config.Recursive, config.includePatterns(), config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover snapshot files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no snapshot files found")
	}

	pl, err := buildPipeline(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	workers := config.workerCount(len(files))
	startTime := time.Now()
	items := processSnapshotsParallel(ctx, pl, files, workers, config)
	duration := time.Since(startTime)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch processing canceled: %w", err)
	}

	return &Result{
		Items:       items,
		Duration:    duration,
		WorkerCount: workers,
	}, nil
}

// FormatResults formats the batch results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Items, format)
}

// WriteResults writes the formatted results to w.
func (r *Result) WriteResults(w io.Writer, format string) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	_, err = io.WriteString(w, output)
	return err
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	s := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total snapshots: %d\n", s.Snapshots)
	_, _ = fmt.Fprintf(w, "  Completed: %d\n", s.Completed)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Layers: %d (%d mismatched)\n", s.Layers, s.Mismatched)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f snapshots/sec\n", s.Throughput)
}
