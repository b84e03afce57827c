package runflow

import (
	"log/slog"

	"github.com/randalmurphal/runflow/pkg/runflow/observability"
)

// DefaultMaxLoopIterations bounds how many times one loop node may
// re-run its body.
const DefaultMaxLoopIterations = 1000

// runConfig holds configuration for one run.
type runConfig struct {
	logger            *slog.Logger
	runID             string
	metrics           observability.MetricsRecorder
	spans             observability.SpanManager
	tracingEnabled    bool
	maxLoopIterations int
	maxConcurrency    int
}

// defaultRunConfig returns the default run configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		logger:            slog.Default(),
		metrics:           observability.NoopMetrics{},
		spans:             observability.NoopSpanManager{},
		maxLoopIterations: DefaultMaxLoopIterations,
	}
}

// RunOption configures a run.
type RunOption func(*runConfig)

// WithLogger sets the run logger. Node loggers are derived from it with
// run_id, graph_id and node_id attached.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRunID sets the run identifier used in logs, spans and progress
// events. Default: a generated UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
//
// Example:
//
//	result, err := runflow.RunFlow(ctx, params, runflow.WithMetrics(true))
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a specific metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run, every node visit
// and every loop iteration.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithMaxLoopIterations sets how many iterations a single loop node may
// run before it fails with a MaxIterationsError.
// Default: 1000
func WithMaxLoopIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxLoopIterations = n
		}
	}
}

// WithMaxConcurrency bounds how many nodes of one graph instance run at
// the same time. Zero means unbounded.
// Default: 0
func WithMaxConcurrency(n int) RunOption {
	return func(c *runConfig) {
		if n >= 0 {
			c.maxConcurrency = n
		}
	}
}

// WithSpanManager enables tracing through a specific span manager.
func WithSpanManager(s observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if s != nil {
			c.spans = s
			c.tracingEnabled = true
		}
	}
}
