package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of runflow metrics.
const MeterName = "runflow"

// MetricsRecorder records runflow metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node visit that ran its runner.
	RecordNodeExecution(ctx context.Context, nodeID, nodeType string, duration time.Duration, err error)

	// RecordNodeSkipped records a node visit that was skipped.
	RecordNodeSkipped(ctx context.Context, nodeID string)

	// RecordFlowRun records a finished run.
	RecordFlowRun(ctx context.Context, success bool, duration time.Duration)

	// RecordLoopIteration records one loop body iteration.
	RecordLoopIteration(ctx context.Context, nodeID string)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	nodeSkipped    metric.Int64Counter
	flowRuns       metric.Int64Counter
	flowLatency    metric.Float64Histogram
	loopIterations metric.Int64Counter
}

// NewMetricsRecorderWithProvider creates a recorder on the given meter provider.
func NewMetricsRecorderWithProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	meter := mp.Meter(MeterName)
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("runflow.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("runflow.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("runflow.node.errors",
		metric.WithDescription("Number of failed node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeSkipped, err = meter.Int64Counter("runflow.node.skipped",
		metric.WithDescription("Number of skipped nodes"),
	); err != nil {
		return nil, err
	}
	if m.flowRuns, err = meter.Int64Counter("runflow.flow.runs",
		metric.WithDescription("Number of flow runs"),
	); err != nil {
		return nil, err
	}
	if m.flowLatency, err = meter.Float64Histogram("runflow.flow.latency_ms",
		metric.WithDescription("Flow run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.loopIterations, err = meter.Int64Counter("runflow.loop.iterations",
		metric.WithDescription("Number of loop body iterations"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a recorder on the global meter provider.
// If the instruments cannot be created it returns NoopMetrics.
//
// Configure the provider before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := NewMetricsRecorderWithProvider(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID, nodeType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("node_type", nodeType),
	)
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordNodeSkipped(ctx context.Context, nodeID string) {
	m.nodeSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}

func (m *otelMetrics) RecordFlowRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.flowRuns.Add(ctx, 1, attrs)
	m.flowLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordLoopIteration(ctx context.Context, nodeID string) {
	m.loopIterations.Add(ctx, 1, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
