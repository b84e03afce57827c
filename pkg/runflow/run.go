package runflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/runflow/pkg/runflow/observability"
)

// RunFlow executes a flow to completion.
//
// Node failures are contained: the node fails, its branch is skipped and
// the failure is listed in RunFlowResult.Errors. RunFlow returns an error
// only when the params are invalid, a structural invariant breaks during
// the run, or ctx is cancelled.
//
// Example:
//
//	registry := runflow.NewRegistry().
//	    Register("TextTemplate", templateRunner).
//	    Register("OutputNode", outputRunner)
//
//	result, err := runflow.RunFlow(ctx, runflow.RunFlowParams{
//	    Edges:               edges,
//	    NodeConfigs:         nodeConfigs,
//	    Connectors:          connectors,
//	    InputVariableValues: inputs,
//	    Runners:             registry,
//	})
func RunFlow(ctx context.Context, params RunFlowParams, opts ...RunOption) (result *RunFlowResult, runErr error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.New().String()
	}

	if err := Validate(params); err != nil {
		return nil, err
	}
	if params.Graphs == nil {
		graphs, graphErrs := ComputeSubgraphs(params.NodeConfigs, params.Edges)
		if len(graphErrs) > 0 {
			return nil, joinGraphErrors(graphErrs)
		}
		params.Graphs = graphs
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, cfg.runID, len(params.NodeConfigs))

	runCtx := ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		runCtx, runSpan = cfg.spans.StartRunSpan(ctx, cfg.runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	base := &executionContext{
		Context: runCtx,
		logger:  cfg.logger,
		runID:   cfg.runID,
		graphID: RootGraphID,
	}

	fc, err := newRunFlowContext(&params, &cfg, base)
	if err != nil {
		return nil, err
	}

	root, err := fc.createRunGraphContext(RootGraphID)
	if err == nil {
		err = runGraph(runCtx, root)
	}
	fc.complete()

	duration := time.Since(startTime)
	cfg.metrics.RecordFlowRun(runCtx, err == nil, duration)

	if err != nil {
		observability.LogRunError(cfg.logger, cfg.runID, err, float64(duration.Milliseconds()))
		return nil, err
	}

	result = root.result()
	observability.LogRunComplete(cfg.logger, cfg.runID, float64(duration.Milliseconds()), fc.executedCount(), len(result.Errors))
	return result, nil
}

func joinGraphErrors(graphErrs map[string][]error) error {
	ids := sortedKeys(graphErrs)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		for _, err := range graphErrs[id] {
			errs = append(errs, &InvariantError{NodeID: id, Op: "compute graphs", Err: err})
		}
	}
	return errors.Join(errs...)
}

// runGraph drains one graph instance's ready queue, running every ready
// node on its own goroutine. It returns once the queue is closed and every
// node finished, or with the first fatal error.
func runGraph(ctx context.Context, g *RunGraphContext) error {
	eg, gctx := errgroup.WithContext(ctx)
	if n := g.flow.cfg.maxConcurrency; n > 0 {
		eg.SetLimit(n)
	}

	drained := false
loop:
	for {
		select {
		case nodeID, ok := <-g.queue:
			if !ok {
				drained = true
				break loop
			}
			eg.Go(func() error {
				return runNode(gctx, g, nodeID)
			})
		case <-gctx.Done():
			break loop
		}
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if !drained {
		return &CancellationError{Cause: ctx.Err()}
	}
	return nil
}

// runNode performs one node visit: decide whether it runs, run it, report
// progress, then propagate its outcome and release its successors.
func runNode(ctx context.Context, g *RunGraphContext, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return &CancellationError{NodeID: nodeID, Cause: err}
	}

	fc := g.flow
	cfg := fc.cfg
	node := g.createRunNodeContext(nodeID)

	fc.mu.Lock()
	state := node.beforeRunHook()
	var inputs []any
	if state == NodeRunning {
		inputs = node.inputVariableValues()
	}
	fc.mu.Unlock()

	fc.emit(ProgressEvent{Type: ProgressStarted, GraphID: g.graphID, NodeID: nodeID, State: state})

	var fatal error
	if state == NodeRunning {
		fatal = executeNode(ctx, node, inputs)
	} else {
		logger := observability.EnrichLogger(cfg.logger, fc.runID, g.graphID, nodeID)
		observability.LogNodeSkipped(logger, nodeID)
		cfg.metrics.RecordNodeSkipped(ctx, nodeID)
	}

	if fatal != nil && node.outcome == 0 {
		node.outcome = NodeFailed
	}

	fc.mu.Lock()
	node.applyOutcome()
	if state == NodeRunning {
		fc.nodesExecuted++
	}
	final := g.states.NodeStates[nodeID]
	fc.mu.Unlock()

	fc.emit(ProgressEvent{Type: ProgressFinished, GraphID: g.graphID, NodeID: nodeID, State: final})

	if fatal != nil {
		return fatal
	}

	fc.mu.Lock()
	node.propagateConnectorResults()
	node.propagateRunState()
	node.handleFinishNode()
	g.completeEdges(node)
	fc.mu.Unlock()

	return nil
}

// executeNode runs a RUNNING node with observability around it. Only
// fatal errors are returned; runner failures end up on the node.
func executeNode(ctx context.Context, node *RunNodeContext, inputs []any) error {
	fc := node.flow
	cfg := fc.cfg
	nodeType := node.config.Type

	nodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var span trace.Span
	if cfg.tracingEnabled {
		nodeCtx, span = cfg.spans.StartNodeSpan(nodeCtx, node.graph.graphID, node.nodeID, nodeType)
	}

	ec := fc.base.forNode(nodeCtx, node.graph.graphID, node.nodeID)
	observability.LogNodeStart(ec.logger, node.nodeID, nodeType)
	start := time.Now()

	var fatal error
	if node.config.Class == ClassSubroutine {
		fatal = runLoopNode(ec, node)
	} else {
		fatal = consumeRunner(ec, node, inputs)
	}

	duration := time.Since(start)
	nodeErr := fatal
	if nodeErr == nil && node.err != nil {
		nodeErr = &NodeError{NodeID: node.nodeID, Op: "run", Err: node.err}
	}

	cfg.metrics.RecordNodeExecution(nodeCtx, node.nodeID, nodeType, duration, nodeErr)
	if cfg.tracingEnabled {
		cfg.spans.EndSpanWithError(span, nodeErr)
	}

	if nodeErr != nil {
		observability.LogNodeError(ec.logger, node.nodeID, nodeErr)
	} else {
		observability.LogNodeComplete(ec.logger, node.nodeID, NodeSucceeded.String(), float64(duration.Milliseconds()))
	}
	return fatal
}

// consumeRunner starts the node's runner and folds its stream into the
// node, emitting an Updated event per result.
func consumeRunner(ctx *executionContext, node *RunNodeContext, inputs []any) error {
	fc := node.flow

	runner, ok := resolveRunner(fc.params.Runners, node.config)
	if !ok {
		failNode(node, fmt.Errorf("%w: %s", ErrRunnerNotFound, node.config.Type))
		return nil
	}

	stream, err := startRunner(ctx, runner, node.runParams(inputs))
	if err != nil {
		failNode(node, err)
		return nil
	}

	interrupted := func() error {
		node.outcome = NodeInterrupted
		return &CancellationError{NodeID: node.nodeID, Cause: ctx.Err(), WasExecuting: true}
	}

	for {
		select {
		case item, ok := <-stream:
			// A runner giving up because of cancellation is an interruption,
			// not a failure or a completion.
			if ctx.Err() != nil {
				return interrupted()
			}
			if !ok {
				node.onRunNodeComplete()
				return nil
			}
			if item.Err != nil {
				failNode(node, item.Err)
				return nil
			}
			if item.Result != nil {
				emitUpdate(node, node.onRunNodeEvent(item.Result))
			}
		case <-ctx.Done():
			return interrupted()
		}
	}
}

// emitUpdate reports one partial result of a running node.
func emitUpdate(node *RunNodeContext, update *ProgressUpdate) {
	node.flow.emit(ProgressEvent{
		Type:    ProgressUpdated,
		GraphID: node.graph.graphID,
		NodeID:  node.nodeID,
		State:   NodeRunning,
		Result:  update,
	})
}

// failNode fails the node and reports the error as an Updated event
// before the node finishes.
func failNode(node *RunNodeContext, err error) {
	node.onRunNodeError(err)
	emitUpdate(node, &ProgressUpdate{Errors: []string{err.Error()}})
}

// startRunner calls RunNode, turning a panic into a PanicError.
func startRunner(ctx Context, runner NodeRunner, params RunNodeParams) (stream ResultStream, err error) {
	defer func() {
		if r := recover(); r != nil {
			stream = nil
			err = &PanicError{
				NodeID: ctx.NodeID(),
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return runner.RunNode(ctx, params)
}

// resolveRunner prefers a registered runner and falls back to the built-in
// behavior of structural classes.
func resolveRunner(lookup RunnerLookup, nc NodeConfig) (NodeRunner, bool) {
	if lookup != nil {
		if r, ok := lookup.Runner(nc.Type); ok {
			return r, true
		}
	}
	switch nc.Class {
	case ClassStart, ClassFinish:
		return echoInputs, true
	case ClassSubroutineStart:
		return passThrough, true
	case ClassLoopFinish:
		return emptyResult, true
	default:
		return nil, false
	}
}

// echoInputs emits the resolved values back: a Start node's seeded
// outputs, or a Finish node's inputs.
var echoInputs = RunnerFunc(func(_ Context, params RunNodeParams) (*RunNodeResult, error) {
	return &RunNodeResult{VariableValues: params.InputVariableValues}, nil
})

// passThrough completes without emitting anything.
var passThrough = RunnerFunc(func(Context, RunNodeParams) (*RunNodeResult, error) {
	return nil, nil
})

// emptyResult emits one empty result.
var emptyResult = RunnerFunc(func(Context, RunNodeParams) (*RunNodeResult, error) {
	return &RunNodeResult{}, nil
})

// runLoopNode runs the loop body until its LoopFinish breaks. Each
// iteration gets a fresh graph instance while the variable store carries
// over, so counters kept in global variables survive between iterations.
func runLoopNode(ctx *executionContext, node *RunNodeContext) error {
	fc := node.flow
	cfg := fc.cfg

	loopStart := node.config.LoopStartNodeID
	if loopStart == "" {
		return &InvariantError{NodeID: node.nodeID, Op: "loop", Err: ErrLoopStartRequired}
	}

	for iteration := 1; ; iteration++ {
		if iteration > cfg.maxLoopIterations {
			failNode(node, &MaxIterationsError{Max: cfg.maxLoopIterations, NodeID: node.nodeID})
			return nil
		}

		observability.LogLoopIteration(ctx.logger, node.nodeID, iteration)
		cfg.metrics.RecordLoopIteration(ctx, node.nodeID)

		var iterCtx context.Context = ctx
		var span trace.Span
		if cfg.tracingEnabled {
			iterCtx, span = cfg.spans.StartLoopIterationSpan(ctx, node.nodeID, iteration)
		}

		body, err := fc.createRunGraphContext(loopStart)
		if err == nil {
			err = runGraph(iterCtx, body)
		}
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(span, err)
		}
		if err != nil {
			return err
		}

		fc.mu.Lock()
		outcome, loopFinishID, ambiguous, err := fc.loopDecision(body)
		fc.mu.Unlock()
		if err != nil {
			return err
		}

		if ambiguous {
			observability.LogLoopAmbiguous(ctx.logger, node.nodeID, loopFinishID, iteration)
			emitUpdate(node, node.onRunNodeEvent(&RunNodeResult{
				Errors: []string{fmt.Sprintf("loop %s: both continue and break are met at %s, breaking", node.nodeID, loopFinishID)},
			}))
		}

		if outcome == loopBreak {
			node.onRunNodeComplete()
			return nil
		}
	}
}

// executedCount returns how many node visits ran their runner.
func (fc *RunFlowContext) executedCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.nodesExecuted
}
