package runflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context provides execution context to node runners.
// It extends context.Context with run metadata and an enriched logger.
//
// Context is immutable after creation. The engine derives one per node
// visit with the node's id and graph instance filled in.
type Context interface {
	context.Context

	// Logger returns the run logger enriched with run_id, graph_id and node_id.
	// Never returns nil.
	Logger() *slog.Logger

	// RunID returns the unique identifier for this run.
	RunID() string

	// GraphID returns the subgraph the node is running in: RootGraphID or
	// the SubroutineStart node id of a loop body.
	GraphID() string

	// NodeID returns the node being executed.
	NodeID() string
}

type executionContext struct {
	context.Context

	logger  *slog.Logger
	runID   string
	graphID string
	nodeID  string
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) GraphID() string      { return c.graphID }
func (c *executionContext) NodeID() string       { return c.nodeID }

// ContextOption configures a Context built by NewContext.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger of a Context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run id of a Context.
// If not set, a UUID is generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// WithContextNode sets the graph and node ids of a Context.
func WithContextNode(graphID, nodeID string) ContextOption {
	return func(c *executionContext) {
		c.graphID = graphID
		c.nodeID = nodeID
	}
}

// NewContext wraps a context.Context for calling a runner outside of
// RunFlow, typically in a runner's own tests.
//
// Example:
//
//	ctx := runflow.NewContext(context.Background(),
//	    runflow.WithContextRunID("run-123"))
//	stream, err := myRunner.RunNode(ctx, params)
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		graphID: RootGraphID,
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// forNode derives the per-visit context of one node.
func (c *executionContext) forNode(ctx context.Context, graphID, nodeID string) *executionContext {
	return &executionContext{
		Context: ctx,
		logger:  c.logger.With("run_id", c.runID, "graph_id", graphID, "node_id", nodeID),
		runID:   c.runID,
		graphID: graphID,
		nodeID:  nodeID,
	}
}
