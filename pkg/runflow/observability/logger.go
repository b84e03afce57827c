// Package observability provides the logging, metrics and tracing used by
// runflow: slog helpers for run and node lifecycle, an OpenTelemetry
// metrics recorder and an OpenTelemetry span manager.
//
// Metrics and tracing are opt-in. NoopMetrics and NoopSpanManager are
// used when they are disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "ROOT", "K5n6N")
//	enriched.Info("rendering template") // includes run_id, graph_id, node_id
func EnrichLogger(logger *slog.Logger, runID, graphID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("graph_id", graphID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a flow run.
func LogRunStart(logger *slog.Logger, runID string, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("flow run starting",
		slog.String("run_id", runID),
		slog.Int("nodes", nodeCount),
	)
}

// LogRunComplete logs a finished flow run. errorCount counts node-level
// errors, which do not fail the run.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodesExecuted, errorCount int) {
	if logger == nil {
		return
	}
	logger.Info("flow run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodesExecuted),
		slog.Int("node_errors", errorCount),
	)
}

// LogRunError logs a flow run aborted by a fatal error.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("flow run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeStart logs the start of a node visit.
func LogNodeStart(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeComplete logs the end of a node visit with its final state.
func LogNodeComplete(logger *slog.Logger, nodeID, state string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.String("state", state),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a contained node failure.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogNodeSkipped logs a node skipped because an incoming branch was not taken.
func LogNodeSkipped(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node skipped",
		slog.String("node_id", nodeID),
	)
}

// LogLoopIteration logs the start of one loop body iteration.
func LogLoopIteration(logger *slog.Logger, nodeID string, iteration int) {
	if logger == nil {
		return
	}
	logger.Debug("loop iteration starting",
		slog.String("node_id", nodeID),
		slog.Int("iteration", iteration),
	)
}

// LogLoopAmbiguous warns that both the continue and break conditions of a
// loop were met. The loop breaks.
func LogLoopAmbiguous(logger *slog.Logger, nodeID, loopFinishID string, iteration int) {
	if logger == nil {
		return
	}
	logger.Warn("both continue and break are met, breaking",
		slog.String("node_id", nodeID),
		slog.String("loop_finish_id", loopFinishID),
		slog.Int("iteration", iteration),
	)
}

// TimedOperation measures the duration of an operation.
// The returned function reports the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
