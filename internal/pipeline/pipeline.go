// Package pipeline drives a full conversion run: every layer of a source
// network is converted in order, optionally validated against the recorded
// source outputs and benchmarked on the target runtime.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/benchmark"
	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/metrics"
	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/target"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
	"github.com/MeKo-Tech/caffebridge/internal/validate"
)

// Config holds the settings of one run.
type Config struct {
	Convert convert.Options
	// SkipUnsupported records unsupported layer kinds as skipped and
	// continues. Other structural errors always stop the run.
	SkipUnsupported bool

	Validate  bool
	Threshold float64
	Policy    validate.Policy

	Benchmark bool
	Bench     benchmark.Options

	// KeepSpecs attaches each layer's canonical spec to its result.
	KeepSpecs bool
}

// DefaultConfig returns a strict, validating configuration.
func DefaultConfig() Config {
	return Config{
		Validate:  true,
		Threshold: validate.DefaultThreshold,
		Policy:    validate.StrictPolicy(),
		Bench:     benchmark.DefaultOptions(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Recorder
	progress ProgressCallback
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithSkipUnsupported toggles skip-and-report for unsupported kinds.
func (b *Builder) WithSkipUnsupported(skip bool) *Builder {
	b.cfg.SkipUnsupported = skip
	return b
}

// WithValidation enables validation with the given threshold and policy.
func (b *Builder) WithValidation(threshold float64, policy validate.Policy) *Builder {
	b.cfg.Validate = true
	b.cfg.Threshold = threshold
	b.cfg.Policy = policy
	return b
}

// WithoutValidation disables validation.
func (b *Builder) WithoutValidation() *Builder {
	b.cfg.Validate = false
	return b
}

// WithBenchmark enables forward-pass timing.
func (b *Builder) WithBenchmark(opts benchmark.Options) *Builder {
	b.cfg.Benchmark = true
	b.cfg.Bench = opts
	return b
}

// WithSpecs attaches canonical layer specs to the report.
func (b *Builder) WithSpecs(keep bool) *Builder {
	b.cfg.KeepSpecs = keep
	return b
}

// WithLogger sets the logger used by every stage.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics attaches a metrics recorder.
func (b *Builder) WithMetrics(r *metrics.Recorder) *Builder {
	b.metrics = r
	return b
}

// WithProgress attaches a progress callback.
func (b *Builder) WithProgress(cb ProgressCallback) *Builder {
	b.progress = cb
	return b
}

// Build validates the configuration and returns the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if b.cfg.Benchmark && b.cfg.Bench.Iterations < 1 {
		return nil, fmt.Errorf("benchmark iterations must be >= 1, got %d", b.cfg.Bench.Iterations)
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := b.cfg
	cfg.Convert.Logger = logger
	p := &Pipeline{cfg: cfg, logger: logger, metrics: b.metrics, progress: b.progress}
	if p.progress == nil {
		p.progress = NoOpProgressCallback{}
	}
	if cfg.Validate {
		p.validator = validate.New(cfg.Threshold, cfg.Policy)
		p.validator.Logger = logger
	}
	return p, nil
}

// Pipeline converts, validates and benchmarks networks.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Recorder
	progress  ProgressCallback
	validator *validate.Validator
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run processes every layer after the data layer. The returned report is
// never nil. A non-nil error means the run stopped early, either on a
// structural conversion error or on ctx cancellation; the report then
// covers the layers processed so far. Validation mismatches never produce
// an error here.
func (p *Pipeline) Run(ctx context.Context, net *source.Net) (*Report, error) {
	start := time.Now()
	report := &Report{Network: net.Name}
	if p.validator != nil {
		report.Threshold = p.validator.Threshold
		report.PolicyVersion = p.validator.Policy.Version
	}
	defer func() {
		report.Summarize()
		report.Duration = time.Since(start)
	}()

	if err := net.Validate(); err != nil {
		report.Aborted = true
		return report, fmt.Errorf("invalid snapshot: %w", err)
	}

	total := net.Len() - 1
	p.progress.OnStart(total)
	sess := convert.NewSession(net, p.cfg.Convert)
	for i := 1; i < net.Len(); i++ {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}
		res, err := p.processLayer(ctx, sess, i)
		report.Layers = append(report.Layers, res)
		p.progress.OnProgress(i, total)
		if err != nil {
			p.progress.OnError(i, err)
			report.Aborted = true
			return report, err
		}
	}
	p.progress.OnComplete()

	report.Summarize()
	p.logger.Info("conversion finished",
		"network", net.Name,
		"layers", report.Summary.Layers,
		"converted", report.Summary.Converted,
		"skipped", report.Summary.Skipped,
		"mismatched", report.Summary.Mismatched,
		"duration", time.Since(start))
	return report, nil
}

// processLayer handles one layer. It returns an error only when the run
// must stop.
func (p *Pipeline) processLayer(ctx context.Context, sess *convert.Session, i int) (LayerResult, error) {
	rec := &sess.Net().Layers[i]
	c, err := sess.ConvertLayer(i)
	kindLabel := rec.Type
	if k, ok := convert.Lookup(rec.Type); ok {
		kindLabel = k.String()
	}
	p.metrics.ObserveConversion(kindLabel, err)
	if err != nil {
		res := resultFromError(i, rec.Name, rec.Type, err)
		if p.cfg.SkipUnsupported && errors.Is(err, convert.ErrUnsupportedLayerKind) {
			res.Status = StatusSkipped
			p.logger.Warn("skipping unsupported layer", "layer", i, "name", rec.Name, "type", rec.Type)
			return res, nil
		}
		p.logger.Error("conversion failed", "layer", i, "name", rec.Name, "type", rec.Type,
			"category", res.ErrorCategory, "error", err)
		return res, err
	}
	p.metrics.ObserveStages(c.Stages)

	res := LayerResult{
		Index:       i,
		Name:        rec.Name,
		Type:        rec.Type,
		Kind:        c.Spec.Kind.String(),
		Target:      c.Layer.Type(),
		InputShape:  c.Spec.InputShape,
		OutputShape: c.Spec.OutputShape,
		Connection:  c.Table.String(),
		Status:      StatusConverted,
		Stages:      c.Stages,
	}
	if p.cfg.KeepSpecs {
		spec := c.Spec
		res.Spec = &spec
	}

	hasInput := rec.Bottom != nil && len(rec.Bottom.Data) > 0
	if p.validator != nil {
		p.validateLayer(rec, c, hasInput, &res)
	}
	if p.cfg.Benchmark {
		if err := p.benchmarkLayer(ctx, c, hasInput, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Pipeline) validateLayer(rec *source.LayerRecord, c *convert.Converted, hasInput bool, res *LayerResult) {
	if !hasInput || rec.Top == nil || len(rec.Top.Data) == 0 {
		p.logger.Debug("no recorded activations, skipping validation", "layer", c.Index, "name", rec.Name)
		return
	}
	want, err := rec.Top.Tensor()
	if err != nil {
		res.ValidationError = fmt.Sprintf("recorded output: %v", err)
		p.logger.Error("validation failed", "layer", c.Index, "name", rec.Name, "error", err)
		return
	}
	verdict, err := p.validator.Validate(c.Spec.Kind, c.Layer, want.Data)
	if err != nil {
		res.ValidationError = err.Error()
		p.logger.Error("validation failed", "layer", c.Index, "name", rec.Name, "error", err)
		return
	}
	res.Verdict = &verdict
	p.metrics.ObserveVerdict(rec.Name, verdict)

	gotMin, gotMax, gotMean := tensor.Stats(target.Flatten(c.Layer.Output()))
	wantMin, wantMax, wantMean := tensor.Stats(want.Data)
	attrs := []any{
		"layer", c.Index, "name", rec.Name,
		"out_min", gotMin, "out_max", gotMax, "out_mean", gotMean,
		"want_min", wantMin, "want_max", wantMax, "want_mean", wantMean,
	}
	switch verdict.Status {
	case validate.Mismatched:
		p.logger.Warn("validation mismatch", append(attrs,
			"kind", verdict.Kind.String(),
			"max_diff", verdict.Diff.MaxDiff, "first_offending_index", verdict.Diff.FirstIndex)...)
	default:
		p.logger.Debug("validated layer", append(attrs, "verdict", verdict.String())...)
	}
}

func (p *Pipeline) benchmarkLayer(ctx context.Context, c *convert.Converted, hasInput bool, res *LayerResult) error {
	if !hasInput {
		p.logger.Debug("no recorded input, skipping benchmark", "layer", c.Index, "name", res.Name)
		return nil
	}
	r, err := benchmark.MeasureForward(ctx, c.Layer, p.cfg.Bench)
	r.Name = res.Name
	res.Benchmark = &r
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Error("benchmark failed", "layer", c.Index, "name", res.Name, "error", err)
		return nil
	}
	p.metrics.ObserveForward(res.Kind, r.Mean())
	return nil
}

func asLayerError(err error) (*convert.LayerError, bool) {
	var le *convert.LayerError
	ok := errors.As(err, &le)
	return le, ok
}
