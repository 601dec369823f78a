package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
	"github.com/MeKo-Tech/caffebridge/internal/source"
)

// Item is the outcome for one snapshot file.
type Item struct {
	File     string           `json:"file" yaml:"file"`
	Report   *pipeline.Report `json:"report,omitempty" yaml:"report,omitempty"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration    `json:"duration" yaml:"duration"`
	err      error
}

// Err returns the load or run error of the item.
func (it *Item) Err() error { return it.err }

// Result holds the result of batch processing. Items follow the discovery
// order regardless of which worker finished first.
type Result struct {
	Items       []*Item
	Duration    time.Duration
	WorkerCount int
}

// Stats summarizes a batch.
type Stats struct {
	Snapshots  int
	Completed  int
	Failed     int
	Layers     int
	Mismatched int
	Throughput float64
}

// Stats computes totals over all items.
func (r *Result) Stats() Stats {
	s := Stats{Snapshots: len(r.Items)}
	for _, it := range r.Items {
		if it.err != nil {
			s.Failed++
		} else {
			s.Completed++
		}
		if it.Report != nil {
			s.Layers += it.Report.Summary.Layers
			s.Mismatched += it.Report.Summary.Mismatched
		}
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		s.Throughput = float64(len(r.Items)) / secs
	}
	return s
}

// Failed returns the items whose snapshot failed to load or aborted.
func (r *Result) Failed() []*Item {
	var out []*Item
	for _, it := range r.Items {
		if it.err != nil {
			out = append(out, it)
		}
	}
	return out
}

// processSingleSnapshot loads one snapshot and runs the pipeline on it.
func processSingleSnapshot(ctx context.Context, pl *pipeline.Pipeline, path string) *Item {
	start := time.Now()
	item := &Item{File: path}
	defer func() { item.Duration = time.Since(start) }()

	net, err := source.Load(path)
	if err != nil {
		item.err = err
		item.Error = err.Error()
		return item
	}

	rep, err := pl.Run(ctx, net)
	rep.Source = path
	item.Report = rep
	if err != nil {
		item.err = fmt.Errorf("%s: %w", path, err)
		item.Error = err.Error()
	}
	return item
}

// processSnapshotsParallel fans the files out to workers and collects the
// items in input order.
func processSnapshotsParallel(ctx context.Context, pl *pipeline.Pipeline, files []string,
	workers int, config *Config) []*Item {
	items := make([]*Item, len(files))
	progress := config.progress()
	logger := config.logger()
	jobs := make(chan int)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	progress.OnStart(len(files))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := processSingleSnapshot(ctx, pl, files[i])
				if item.err != nil {
					logger.Warn("snapshot failed", "file", files[i], "error", item.err)
				}
				items[i] = item

				mu.Lock()
				done++
				progress.OnProgress(done, len(files))
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// files never handed out after cancellation
	for i, it := range items {
		if it == nil {
			items[i] = &Item{File: files[i], Error: ctx.Err().Error(), err: ctx.Err()}
		}
	}
	progress.OnComplete()
	return items
}
