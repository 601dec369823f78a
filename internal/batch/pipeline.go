package batch

import (
	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
)

// buildPipeline creates the pipeline shared by every worker. Runs keep no
// state in the pipeline, so one instance serves all of them.
func buildPipeline(config *Config) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilder().
		WithConfig(config.Pipeline).
		WithMetrics(config.Metrics).
		WithLogger(config.logger()).
		Build()
}
