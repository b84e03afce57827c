/*
Package runflow executes visual LLM workflows described as flow graphs.

# Overview

A flow is a set of nodes joined by edges between connectors. Each node
has a class (Start, Process, Finish, Condition, Subroutine,
SubroutineStart, LoopFinish) that tells the engine how to schedule it, and
a type that selects the runner computing its outputs. The engine never
looks at what a node computes. It moves values along edges, tracks
node, connector and edge states, skips branches whose conditions were
not met, and reports progress as nodes start, stream and finish.

Nodes become ready when every incoming edge has been delivered. Ready
nodes of one graph run concurrently. A node whose inputs all came from
skipped branches is itself skipped, so skipping spreads downstream until
it meets a node that still has a live input.

# Basic Usage

Describe the flow, register a runner per node type, and run it:

	registry := runflow.NewRegistry().
	    Register("TextTemplate", runflow.RunnerFunc(
	        func(ctx runflow.Context, p runflow.RunNodeParams) (*runflow.RunNodeResult, error) {
	            return &runflow.RunNodeResult{
	                VariableValues: []any{"hello " + p.InputVariableValues[0].(string)},
	            }, nil
	        }))

	params, err := runflow.LoadFlowFile("./greeting.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	params.Runners = registry
	params.InputVariableValues = runflow.VariableValues{"start/name": {Value: "world"}}

	result, err := runflow.RunFlow(context.Background(), params)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(result.VariableValues["finish/in"].Value) // "hello world"

Start and Finish nodes need no runner: Start emits the seeded input
values and Finish echoes what it receives. RunFlowResult.VariableValues
holds the inputs of the root graph's Finish nodes.

Runners that produce partial results implement streaming with StreamFunc.
Each emitted result is merged into the variable store and reported as a
progress update before the next one is read.

# Conditions

A node with OutCondition connectors reports one ConditionResult per
condition. Edges leaving a matched condition carry on. Edges leaving an
unmatched condition are skipped, and so is every node downstream that has
no other live input.

# Loops

A Subroutine node runs its body, the subgraph rooted at LoopStartNodeID,
until the body's LoopFinish node meets its break condition:

	Subroutine -> SubroutineStart -> ... -> LoopFinish(continue, break)

Every iteration runs on a fresh copy of the body's states, while values
written by the body persist between iterations. If both conditions are
met, break wins. If neither is met the run aborts. Iterations are capped
by WithMaxLoopIterations (default 1000).

# Progress

Set RunFlowParams.ProgressObserver to follow a run. Every node produces a
Started event, zero or more Updated events and one Finished event. A
failing node reports its error in an Updated event before it finishes.
OnComplete is called exactly once when the run ends, also when it aborts.
Params rejected by Validate never start a run.
Combine observers with Observers. ProgressCollector keeps events in
memory for tests.

The journal subpackage records progress into a memory or SQLite store for
later replay. The pubsub subpackage publishes progress onto a watermill
publisher and follows it from another process.

# Observability

Enable logging, metrics, and tracing:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	result, err := runflow.RunFlow(ctx, params,
	    runflow.WithLogger(logger),
	    runflow.WithMetrics(true),
	    runflow.WithTracing(true),
	    runflow.WithRunID("run-123"))

Logs include structured fields: run_id, graph_id, node_id, duration_ms.
OpenTelemetry metrics: runflow.node.executions, runflow.loop.iterations, etc.
OpenTelemetry tracing: runflow.run > runflow.loop.iteration > runflow.node.{type} spans.

# Error Handling

Errors raised by a runner fail only that node. The message is reported in
its Finished event and collected in RunFlowResult.Errors, and the run
carries on with the node's outgoing edges skipped.

Errors that break the structure of the flow abort the run:

	result, err := runflow.RunFlow(ctx, params)
	var verr *runflow.ValidationError
	if errors.As(err, &verr) {
	    log.Printf("invalid flow: %v", verr)
	}
	if errors.Is(err, runflow.ErrMaxIterations) {
	    log.Printf("loop did not terminate")
	}

Panics in runners are recovered and fail the node with a PanicError
carrying the stack trace. Cancelling ctx interrupts running nodes and
RunFlow returns a CancellationError.

# Thread Safety

  - RunFlow may be called concurrently with distinct params
  - Registry IS safe for concurrent use
  - Context IS safe for concurrent use
  - ProgressObserver implementations must be safe for concurrent use;
    the engine serializes calls within a run
  - journal stores are safe for concurrent use

# Subpackages

  - config: Node data access and flow file loading (YAML, JSON)
  - journal: Progress journal storage (memory, SQLite) and replay
  - pubsub: Progress publishing over watermill
  - observability: Logging, metrics, and tracing helpers
*/
package runflow
