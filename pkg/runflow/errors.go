package runflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for model parsing and validation.
var (
	// ErrUnknownNodeClass indicates a node class name that is not recognized.
	ErrUnknownNodeClass = errors.New("unknown node class")

	// ErrUnknownConnectorKind indicates a connector kind name that is not recognized.
	ErrUnknownConnectorKind = errors.New("unknown connector kind")

	// ErrInvalidParams is wrapped by every ValidationError.
	ErrInvalidParams = errors.New("invalid run flow params")

	// ErrNodeNotFound indicates an id refers to a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectorNotFound indicates an id refers to a connector that does not exist.
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrRunnerNotFound indicates no runner is registered for a node type.
	ErrRunnerNotFound = errors.New("no runner registered for node type")

	// ErrGraphCircle indicates the graph contains a cycle.
	ErrGraphCircle = errors.New("graph contains a circle")

	// ErrGraphOverlap indicates a node belongs to more than one subgraph.
	ErrGraphOverlap = errors.New("node belongs to more than one subgraph")
)

// Sentinel errors for structural invariant violations during a run.
// These abort the whole run.
var (
	// ErrNilContext indicates RunFlow was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrMissingEdgeHandle indicates an edge without a source or target connector.
	ErrMissingEdgeHandle = errors.New("edge is missing a connector handle")

	// ErrGraphNotFound indicates no subgraph exists for a graph id.
	ErrGraphNotFound = errors.New("subgraph not found")

	// ErrLoopStartRequired indicates a Subroutine node without a loop start node.
	ErrLoopStartRequired = errors.New("loop start node id is required")

	// ErrLoopFinishNotFound indicates a loop body without a LoopFinish node.
	ErrLoopFinishNotFound = errors.New("loop body has no LoopFinish node")

	// ErrMissingLoopConditions indicates a LoopFinish node without its
	// continue and break conditions.
	ErrMissingLoopConditions = errors.New("LoopFinish requires continue and break conditions")

	// ErrNeitherContinueNorBreak indicates a loop iteration ended with
	// neither LoopFinish condition satisfied.
	ErrNeitherContinueNorBreak = errors.New("neither continue nor break is met")

	// ErrMaxIterations indicates a loop exceeded the configured iteration limit.
	ErrMaxIterations = errors.New("exceeded maximum loop iterations")
)

// ValidationError describes one problem found by Validate.
type ValidationError struct {
	// Subject is the id of the offending node, connector or edge.
	Subject string
	// Err is the underlying problem.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Subject, e.Err)
}

// Unwrap supports errors.Is for both the problem and ErrInvalidParams.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidParams, e.Err}
}

// NodeError wraps an error raised while executing a node.
// Node errors are contained: the node fails, its branch is skipped,
// and sibling branches keep running.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "run", "stream").
	Op string
	// Err is the underlying error from the runner.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a runner.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// InvariantError reports a structural violation that aborts the run.
type InvariantError struct {
	// NodeID is the node where the violation was detected, if any.
	NodeID string
	// Op is what the engine was doing ("init", "loop", ...).
	Op string
	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("invariant violated during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("invariant violated during %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

// MaxIterationsError is raised when a loop node runs more iterations than allowed.
type MaxIterationsError struct {
	// Max is the configured iteration limit.
	Max int
	// NodeID is the loop node.
	NodeID string
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum loop iterations (%d) at node %s", e.Max, e.NodeID)
}

// Unwrap returns ErrMaxIterations for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}

// CancellationError reports that the run was cancelled.
type CancellationError struct {
	// NodeID is the node that was executing, if any.
	NodeID string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation interrupted a runner.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	if e.NodeID == "" {
		return fmt.Sprintf("cancelled: %v", e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}
