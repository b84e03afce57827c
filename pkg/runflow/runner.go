package runflow

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
)

// RunNodeParams is everything a runner receives for one node visit.
// Slices are ordered by connector Index.
type RunNodeParams struct {
	NodeConfig         NodeConfig
	InputVariables     []Connector
	OutputVariables    []Connector
	OutgoingConditions []Connector

	// InputVariableValues is positional over InputVariables, or over
	// OutputVariables for Start nodes. Missing values are nil.
	InputVariableValues []any

	PreferStreaming bool
}

// RunNodeResult is one partial or final result emitted by a runner.
type RunNodeResult struct {
	// Errors are reported in the progress stream. They do not fail the node.
	Errors []string `json:"errors,omitempty"`

	// VariableValues is positional over the node's output variables, or over
	// its input variables for Finish nodes. A nil slice leaves values untouched.
	VariableValues []any `json:"variableValues,omitempty"`

	ConditionResults ConditionResults `json:"conditionResults,omitempty"`
}

// StreamItem is one element of a ResultStream: a result or a terminal error.
type StreamItem struct {
	Result *RunNodeResult
	Err    error
}

// ResultStream carries a runner's results. The runner closes it when done.
// An item with a non-nil Err fails the node; later items are ignored.
type ResultStream <-chan StreamItem

// NodeRunner is the contract every node type implements.
//
// RunNode must honour ctx cancellation. Returning an error fails the node
// without starting a stream.
type NodeRunner interface {
	RunNode(ctx Context, params RunNodeParams) (ResultStream, error)
}

// RunnerFunc adapts a single-shot function to NodeRunner.
type RunnerFunc func(ctx Context, params RunNodeParams) (*RunNodeResult, error)

// RunNode runs f synchronously and returns its result as a one-item stream.
func (f RunnerFunc) RunNode(ctx Context, params RunNodeParams) (ResultStream, error) {
	result, err := f(ctx, params)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamItem, 1)
	if result != nil {
		ch <- StreamItem{Result: result}
	}
	close(ch)
	return ch, nil
}

// StreamFunc adapts a streaming function to NodeRunner. The function calls
// emit for every partial result; emit fails once ctx is cancelled.
type StreamFunc func(ctx Context, params RunNodeParams, emit func(RunNodeResult) error) error

// RunNode starts f on its own goroutine. Panics inside f are delivered as
// a PanicError item.
func (f StreamFunc) RunNode(ctx Context, params RunNodeParams) (ResultStream, error) {
	ch := make(chan StreamItem)

	send := func(item StreamItem) error {
		select {
		case ch <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				_ = send(StreamItem{Err: &PanicError{
					NodeID: ctx.NodeID(),
					Value:  r,
					Stack:  string(debug.Stack()),
				}})
			}
		}()

		err := f(ctx, params, func(r RunNodeResult) error {
			return send(StreamItem{Result: &r})
		})
		if err != nil {
			_ = send(StreamItem{Err: err})
		}
	}()

	return ch, nil
}

// RunnerLookup resolves the runner for a node type.
type RunnerLookup interface {
	Runner(nodeType string) (NodeRunner, bool)
}

// Registry is a thread-safe RunnerLookup keyed by node type.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]NodeRunner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]NodeRunner)}
}

// Register adds or replaces the runner for a node type.
// Returns the registry for method chaining.
//
// Panics if nodeType is empty or runner is nil.
func (r *Registry) Register(nodeType string, runner NodeRunner) *Registry {
	if nodeType == "" {
		panic("runflow: node type cannot be empty")
	}
	if runner == nil {
		panic(fmt.Sprintf("runflow: runner for node type %s cannot be nil", nodeType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[nodeType] = runner
	return r
}

// Runner returns the runner for a node type and whether it exists.
func (r *Registry) Runner(nodeType string) (NodeRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[nodeType]
	return runner, ok
}

// Has returns true if a runner is registered for the node type.
func (r *Registry) Has(nodeType string) bool {
	_, ok := r.Runner(nodeType)
	return ok
}

// Types returns the registered node types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
