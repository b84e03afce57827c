package runflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/runflow/pkg/runflow/config"
)

// fixture builds flows for tests. Connector ids are "<node id>/<name>",
// which lets edges and connectors find their owning node.
type fixture struct {
	edges      []Edge
	nodes      map[string]NodeConfig
	connectors map[string]Connector
	inputs     VariableValues
}

func newFixture() *fixture {
	return &fixture{
		nodes:      make(map[string]NodeConfig),
		connectors: make(map[string]Connector),
		inputs:     make(VariableValues),
	}
}

func ownerOf(connectorID string) string {
	owner, _, _ := strings.Cut(connectorID, "/")
	return owner
}

func (f *fixture) node(id, nodeType string, class NodeClass, data map[string]any) *fixture {
	f.nodes[id] = NodeConfig{ID: id, Type: nodeType, Class: class, Data: config.New(data)}
	return f
}

func (f *fixture) loop(id, loopStartNodeID string) *fixture {
	f.nodes[id] = NodeConfig{ID: id, Type: "BareboneLoop", Class: ClassSubroutine, LoopStartNodeID: loopStartNodeID}
	return f
}

func (f *fixture) conn(id string, kind ConnectorKind, index int) *fixture {
	f.connectors[id] = Connector{ID: id, NodeID: ownerOf(id), Kind: kind, Index: index}
	return f
}

// global adds a global connector. An empty alias leaves GlobalVariableID nil.
func (f *fixture) global(id string, kind ConnectorKind, index int, alias string) *fixture {
	c := Connector{ID: id, NodeID: ownerOf(id), Kind: kind, Index: index, IsGlobal: true}
	if alias != "" {
		c.GlobalVariableID = GlobalID(alias)
	}
	f.connectors[id] = c
	return f
}

func (f *fixture) edge(id, sourceConnectorID, targetConnectorID string) *fixture {
	f.edges = append(f.edges, Edge{
		ID:                id,
		SourceNodeID:      ownerOf(sourceConnectorID),
		SourceConnectorID: sourceConnectorID,
		TargetNodeID:      ownerOf(targetConnectorID),
		TargetConnectorID: targetConnectorID,
	})
	return f
}

func (f *fixture) input(id string, value any) *fixture {
	f.inputs[id] = Box{Value: value}
	return f
}

func (f *fixture) params(runners RunnerLookup) RunFlowParams {
	return RunFlowParams{
		Edges:               f.edges,
		NodeConfigs:         f.nodes,
		Connectors:          f.connectors,
		InputVariableValues: f.inputs,
		Runners:             runners,
	}
}

// linearFixture is Start -> TextTemplate -> Finish with one value flowing
// over an edge and one through the global variable bRsjl.
func linearFixture() *fixture {
	return newFixture().
		node("Gav0R", "InputNode", ClassStart, nil).
		node("K5n6N", "TextTemplate", ClassProcess, map[string]any{"content": ""}).
		node("KbeEk", "OutputNode", ClassFinish, nil).
		conn("Gav0R/FYiVo", NodeOutput, 0).
		global("Gav0R/eSv7v", NodeOutput, 1, "bRsjl").
		conn("Gav0R/h3hjH", OutCondition, 0).
		conn("K5n6N/GYjaT", InCondition, 0).
		global("K5n6N/JCG2R", NodeInput, 0, "bRsjl").
		conn("K5n6N/Ok8PJ", NodeInput, 1).
		conn("K5n6N/XmH61", NodeInput, 2).
		global("K5n6N/hHQNY", NodeInput, 3, "").
		conn("K5n6N/mPehv", OutCondition, 0).
		conn("K5n6N/content", NodeOutput, 0).
		conn("KbeEk/2xFif", InCondition, 0).
		global("KbeEk/R6Y7U", NodeInput, 0, "bRsjl").
		conn("KbeEk/ktoDr", NodeInput, 1).
		edge("ISUpn", "Gav0R/FYiVo", "K5n6N/XmH61").
		edge("pu5e1", "K5n6N/mPehv", "KbeEk/2xFif").
		input("Gav0R/FYiVo", "test 1").
		input("Gav0R/eSv7v", "test 2")
}

// twoIncomingEdgesFixture has two Start nodes feeding the same InCondition.
func twoIncomingEdgesFixture() *fixture {
	return newFixture().
		node("8jIMr", "InputNode", ClassStart, nil).
		node("jswKV", "InputNode", ClassStart, nil).
		node("coZ0B", "TextTemplate", ClassProcess, map[string]any{"content": "Write a poem"}).
		conn("8jIMr/PEHuV", OutCondition, 0).
		conn("jswKV/yN6kp", OutCondition, 0).
		conn("coZ0B/EV4kO", OutCondition, 0).
		conn("coZ0B/WQ6WM", InCondition, 0).
		conn("coZ0B/content", NodeOutput, 0).
		edge("ufmj3", "jswKV/yN6kp", "coZ0B/WQ6WM").
		edge("p8tGn", "8jIMr/PEHuV", "coZ0B/WQ6WM")
}

// singleIterationLoopFixture runs a loop whose body writes a template into
// the global aGGCt and breaks on the first pass.
func singleIterationLoopFixture() *fixture {
	return newFixture().
		node("38HOp", "InputNode", ClassStart, nil).
		loop("5zGHI", "1jqsX").
		node("6JF8I", "OutputNode", ClassFinish, nil).
		node("1jqsX", "LoopStart", ClassSubroutineStart, nil).
		node("xo62m", "TextTemplate", ClassProcess, map[string]any{"content": "test value 1"}).
		node("YSzqp", "LoopFinish", ClassLoopFinish, nil).
		conn("38HOp/y9Q1s", OutCondition, 0).
		conn("5zGHI/FHe5e", InCondition, 0).
		conn("5zGHI/PKHRY", OutCondition, 0).
		global("6JF8I/frGQv", NodeInput, 0, "aGGCt").
		conn("6JF8I/ueOE5", InCondition, 0).
		conn("1jqsX/lp95M", OutCondition, 0).
		conn("xo62m/3C4ap", InCondition, 0).
		conn("xo62m/krar0", OutCondition, 0).
		global("xo62m/content", NodeOutput, 0, "aGGCt").
		conn("YSzqp/xtCmJ", InCondition, 0).
		conn("YSzqp/nqQah", InCondition, 1).
		edge("OoWtb", "38HOp/y9Q1s", "5zGHI/FHe5e").
		edge("S0ydj", "5zGHI/PKHRY", "6JF8I/ueOE5").
		edge("kjPG4", "1jqsX/lp95M", "xo62m/3C4ap").
		edge("NzsWq", "xo62m/krar0", "YSzqp/nqQah")
}

// counterLoopFixture runs a loop that increments the global vbiQR and
// continues while it is below the JSONataCondition limit.
func counterLoopFixture() *fixture {
	return newFixture().
		node("OLdFn", "InputNode", ClassStart, nil).
		loop("HLDHJ", "97TDT").
		node("771RQ", "OutputNode", ClassFinish, nil).
		node("97TDT", "LoopStart", ClassSubroutineStart, nil).
		node("vAG7s", "JavaScriptFunctionNode", ClassProcess, nil).
		node("PR4rf", "JSONataCondition", ClassCondition, nil).
		node("G7bsz", "LoopFinish", ClassLoopFinish, nil).
		conn("OLdFn/NXJ2v", OutCondition, 0).
		conn("HLDHJ/guI9U", InCondition, 0).
		conn("HLDHJ/WwHBK", OutCondition, 0).
		conn("771RQ/Jg2y4", InCondition, 0).
		global("771RQ/tQ7Ul", NodeInput, 0, "vbiQR").
		conn("97TDT/QO3qt", OutCondition, 0).
		conn("vAG7s/n4gXk", InCondition, 0).
		global("vAG7s/2c81K", NodeInput, 0, "vbiQR").
		conn("vAG7s/jopZe", OutCondition, 0).
		global("vAG7s/output", NodeOutput, 0, "vbiQR").
		conn("PR4rf/VsMSq", InCondition, 0).
		global("PR4rf/input", NodeInput, 0, "vbiQR").
		conn("PR4rf/nV4jC", OutCondition, 1).
		conn("PR4rf/qVd56", OutCondition, -1).
		conn("G7bsz/XSKf8", InCondition, 0).
		conn("G7bsz/HJxkW", InCondition, 1).
		edge("TbP5m", "OLdFn/NXJ2v", "HLDHJ/guI9U").
		edge("m0yWT", "HLDHJ/WwHBK", "771RQ/Jg2y4").
		edge("ez5PR", "97TDT/QO3qt", "vAG7s/n4gXk").
		edge("VRif8", "vAG7s/jopZe", "PR4rf/VsMSq").
		edge("ZI0xz", "PR4rf/nV4jC", "G7bsz/XSKf8").
		edge("GrOD9", "PR4rf/qVd56", "G7bsz/HJxkW")
}

// textTemplate emits the node's "content" setting as its only output.
var textTemplate = RunnerFunc(func(_ Context, p RunNodeParams) (*RunNodeResult, error) {
	return &RunNodeResult{VariableValues: []any{p.NodeConfig.Data.String("content", "")}}, nil
})

// counter emits its first input plus one, treating a missing input as 0.
var counter = RunnerFunc(func(_ Context, p RunNodeParams) (*RunNodeResult, error) {
	i := 0
	if len(p.InputVariableValues) > 0 {
		i, _ = p.InputVariableValues[0].(int)
	}
	return &RunNodeResult{VariableValues: []any{i + 1}}, nil
})

// lessThan matches the first non-default condition when the first input is
// below limit. The default condition (negative Index) matches otherwise.
func lessThan(limit int) NodeRunner {
	return RunnerFunc(func(_ Context, p RunNodeParams) (*RunNodeResult, error) {
		v := 0
		if len(p.InputVariableValues) > 0 {
			v, _ = p.InputVariableValues[0].(int)
		}
		results := make(ConditionResults)
		matched := false
		fallback := ""
		for _, c := range p.OutgoingConditions {
			if c.Index < 0 {
				fallback = c.ID
				continue
			}
			ok := !matched && v < limit
			results[c.ID] = ConditionResult{IsConditionMatched: ok}
			matched = matched || ok
		}
		if fallback != "" {
			results[fallback] = ConditionResult{IsConditionMatched: !matched}
		}
		return &RunNodeResult{ConditionResults: results}, nil
	})
}

// equals matches every condition whose Name equals the first input.
var equals = RunnerFunc(func(_ Context, p RunNodeParams) (*RunNodeResult, error) {
	var v any
	if len(p.InputVariableValues) > 0 {
		v = p.InputVariableValues[0]
	}
	results := make(ConditionResults)
	for _, c := range p.OutgoingConditions {
		if c.Name != "" && c.Name == v {
			results[c.ID] = ConditionResult{IsConditionMatched: true}
		}
	}
	return &RunNodeResult{ConditionResults: results}, nil
})

// failing returns a runner that fails with err.
func failing(err error) NodeRunner {
	return RunnerFunc(func(Context, RunNodeParams) (*RunNodeResult, error) {
		return nil, err
	})
}

// panicking returns a runner that panics with value.
func panicking(value any) NodeRunner {
	return RunnerFunc(func(Context, RunNodeParams) (*RunNodeResult, error) {
		panic(value)
	})
}

// blocking signals started and then waits for ctx to be cancelled.
func blocking(started chan<- struct{}) NodeRunner {
	return StreamFunc(func(ctx Context, _ RunNodeParams, _ func(RunNodeResult) error) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
}

func testRegistry() *Registry {
	return NewRegistry().
		Register("TextTemplate", textTemplate).
		Register("JavaScriptFunctionNode", counter).
		Register("JSONataCondition", lessThan(3))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestFlowContext builds a RunFlowContext without running anything.
func newTestFlowContext(t *testing.T, params RunFlowParams) *RunFlowContext {
	t.Helper()

	if params.Graphs == nil {
		graphs, errs := ComputeSubgraphs(params.NodeConfigs, params.Edges)
		require.Empty(t, errs)
		params.Graphs = graphs
	}

	cfg := defaultRunConfig()
	cfg.logger = discardLogger()
	base := &executionContext{
		Context: context.Background(),
		logger:  cfg.logger,
		runID:   "test-run",
		graphID: RootGraphID,
	}

	fc, err := newRunFlowContext(&params, &cfg, base)
	require.NoError(t, err)
	return fc
}

// newTestGraph instantiates a graph of fc.
func newTestGraph(t *testing.T, fc *RunFlowContext, graphID string) *RunGraphContext {
	t.Helper()
	g, err := fc.createRunGraphContext(graphID)
	require.NoError(t, err)
	return g
}

// eventTypes flattens events to "<node>:<type>" for order assertions.
func eventTypes(events []ProgressEvent) []string {
	out := make([]string, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.NodeID+":"+evt.Type.String())
	}
	return out
}

// finishedState returns the state of the last Finished event of a node.
func finishedState(events []ProgressEvent, nodeID string) (NodeState, bool) {
	state, found := NodePending, false
	for _, evt := range events {
		if evt.NodeID == nodeID && evt.Type == ProgressFinished {
			state, found = evt.State, true
		}
	}
	return state, found
}

// updateErrors collects the errors reported by a node's Updated events.
func updateErrors(events []ProgressEvent, nodeID string) []string {
	var errs []string
	for _, evt := range events {
		if evt.NodeID == nodeID && evt.Type == ProgressUpdated && evt.Result != nil {
			errs = append(errs, evt.Result.Errors...)
		}
	}
	return errs
}

var errBoom = errors.New("boom")
