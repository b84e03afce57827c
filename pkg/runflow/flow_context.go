package runflow

import (
	"sort"
	"sync"
	"sync/atomic"
)

// nodeConnectors are the connectors of one node grouped by kind, each
// group ordered by Index.
type nodeConnectors struct {
	inputs   []Connector
	outputs  []Connector
	outConds []Connector
	inConds  []Connector
}

// incoming returns the NodeInput and InCondition connectors.
func (nc *nodeConnectors) incoming() []Connector {
	out := make([]Connector, 0, len(nc.inputs)+len(nc.inConds))
	out = append(out, nc.inputs...)
	return append(out, nc.inConds...)
}

// outgoing returns the NodeOutput and OutCondition connectors.
func (nc *nodeConnectors) outgoing() []Connector {
	out := make([]Connector, 0, len(nc.outputs)+len(nc.outConds))
	out = append(out, nc.outputs...)
	return append(out, nc.outConds...)
}

func groupConnectors(connectors map[string]Connector) map[string]*nodeConnectors {
	grouped := make(map[string]*nodeConnectors)
	for _, c := range connectors {
		nc, ok := grouped[c.NodeID]
		if !ok {
			nc = &nodeConnectors{}
			grouped[c.NodeID] = nc
		}
		switch c.Kind {
		case NodeInput:
			nc.inputs = append(nc.inputs, c)
		case NodeOutput:
			nc.outputs = append(nc.outputs, c)
		case OutCondition:
			nc.outConds = append(nc.outConds, c)
		case InCondition:
			nc.inConds = append(nc.inConds, c)
		}
	}
	byIndex := func(cs []Connector) {
		sort.SliceStable(cs, func(i, j int) bool {
			if cs[i].Index != cs[j].Index {
				return cs[i].Index < cs[j].Index
			}
			return cs[i].ID < cs[j].ID
		})
	}
	for _, nc := range grouped {
		byIndex(nc.inputs)
		byIndex(nc.outputs)
		byIndex(nc.outConds)
		byIndex(nc.inConds)
	}
	return grouped
}

// RunFlowContext is the whole-run state shared by every graph instance:
// the variable and condition stores, the aggregated errors and the static
// indices derived from the flow.
//
// Every store mutation happens under mu, so the stores have a single
// writer at a time. Runners execute without holding it.
type RunFlowContext struct {
	params *RunFlowParams
	cfg    *runConfig
	runID  string
	base   *executionContext

	graphs        map[string]*Subgraph
	initialStates *RunFlowStates
	connectors    map[string]*nodeConnectors
	edges         map[string]Edge
	sourceOf      map[string]string

	mu                  sync.Mutex
	allVariableValues   VariableValues
	allConditionResults ConditionResults
	errors              []string
	nodesExecuted       int

	emitMu sync.Mutex

	// queuedNodeCount is the number of nodes queued or running across every
	// graph instance of the run.
	queuedNodeCount atomic.Int64
}

func newRunFlowContext(params *RunFlowParams, cfg *runConfig, base *executionContext) (*RunFlowContext, error) {
	states, err := NewRunFlowStates(params)
	if err != nil {
		return nil, err
	}

	fc := &RunFlowContext{
		params:              params,
		cfg:                 cfg,
		runID:               base.runID,
		base:                base,
		graphs:              params.Graphs,
		initialStates:       states,
		connectors:          groupConnectors(params.Connectors),
		edges:               make(map[string]Edge, len(params.Edges)),
		sourceOf:            make(map[string]string, len(params.Edges)),
		allVariableValues:   params.InputVariableValues.Clone(),
		allConditionResults: make(ConditionResults),
	}
	for _, e := range params.Edges {
		fc.edges[e.ID] = e
		fc.sourceOf[e.TargetConnectorID] = e.SourceConnectorID
	}
	return fc, nil
}

// connectorsOf returns the grouped connectors of a node, never nil.
func (fc *RunFlowContext) connectorsOf(nodeID string) *nodeConnectors {
	if nc, ok := fc.connectors[nodeID]; ok {
		return nc
	}
	return &nodeConnectors{}
}

// sourceConnectorFor returns the connector feeding a target connector.
func (fc *RunFlowContext) sourceConnectorFor(connectorID string) (string, bool) {
	id, ok := fc.sourceOf[connectorID]
	return id, ok
}

// variableValue returns the stored value of a connector or global variable.
// Callers hold mu.
func (fc *RunFlowContext) variableValue(id string) (Box, bool) {
	b, ok := fc.allVariableValues[id]
	return b, ok
}

// readInputValues resolves the positional values of variables. NodeOutput
// connectors read their own id; NodeInput connectors read their global
// alias or the connector feeding them. Missing values are nil.
// Callers hold mu.
func (fc *RunFlowContext) readInputValues(variables []Connector) []any {
	values := make([]any, len(variables))
	for i, v := range variables {
		var key string
		switch {
		case v.Kind == NodeOutput:
			key = v.ID
		case v.IsGlobal:
			if v.GlobalVariableID == nil {
				continue
			}
			key = *v.GlobalVariableID
		default:
			src, ok := fc.sourceConnectorFor(v.ID)
			if !ok {
				continue
			}
			key = src
		}
		if b, ok := fc.variableValue(key); ok {
			values[i] = b.Value
		}
	}
	return values
}

// writeVariableValues flushes a node's computed values into the store.
// Keys absent from values are left untouched. With ownIDs every value
// lands under its connector id; otherwise global connectors write only
// their alias, and nothing when the alias is unset.
// Callers hold mu.
func (fc *RunFlowContext) writeVariableValues(variables []Connector, values VariableValues, ownIDs bool) {
	for _, v := range variables {
		b, ok := values[v.ID]
		if !ok {
			continue
		}
		switch {
		case ownIDs || !v.IsGlobal:
			fc.allVariableValues[v.ID] = b
		case v.GlobalVariableID != nil:
			fc.allVariableValues[*v.GlobalVariableID] = b
		}
	}
}

// writeConditionResults copies condition outcomes into the store.
// Callers hold mu.
func (fc *RunFlowContext) writeConditionResults(results ConditionResults) {
	for id, r := range results {
		fc.allConditionResults[id] = r
	}
}

// recordErrors appends node-level error messages. Callers hold mu.
func (fc *RunFlowContext) recordErrors(msgs []string) {
	fc.errors = append(fc.errors, msgs...)
}

// createRunGraphContext instantiates a fresh graph with its own copy of
// the subgraph flags and the initial state tables.
func (fc *RunFlowContext) createRunGraphContext(graphID string) (*RunGraphContext, error) {
	sg, ok := fc.graphs[graphID]
	if !ok {
		return nil, &InvariantError{NodeID: graphID, Op: "create graph", Err: ErrGraphNotFound}
	}
	return newRunGraphContext(fc, graphID, sg.Clone(), fc.initialStates.Clone())
}

type loopOutcome int

const (
	loopBreak loopOutcome = iota + 1
	loopContinue
)

// loopDecision inspects the LoopFinish node of a finished loop body.
// Its incoming conditions ordered by Index are continue (first) and
// break (second). A condition is satisfied when all its edges delivered
// and it ended MET. ambiguous is true when both were satisfied; break wins.
// Callers hold mu.
func (fc *RunFlowContext) loopDecision(body *RunGraphContext) (outcome loopOutcome, loopFinishID string, ambiguous bool, err error) {
	for _, id := range body.subgraph.NodeIDs() {
		if fc.params.NodeConfigs[id].Class == ClassLoopFinish {
			loopFinishID = id
			break
		}
	}
	if loopFinishID == "" {
		return 0, "", false, &InvariantError{NodeID: body.graphID, Op: "loop", Err: ErrLoopFinishNotFound}
	}

	conds := fc.connectorsOf(loopFinishID).inConds
	if len(conds) < 2 {
		return 0, loopFinishID, false, &InvariantError{NodeID: loopFinishID, Op: "loop", Err: ErrMissingLoopConditions}
	}

	satisfied := func(c Connector) bool {
		d, present := body.subgraph.ConnectorIndegree(loopFinishID, c.ID)
		return present && d == 0 && body.states.ConnectorStates[c.ID] == ConnectorMet
	}
	isContinue := satisfied(conds[0])
	isBreak := satisfied(conds[1])

	switch {
	case isBreak:
		return loopBreak, loopFinishID, isContinue, nil
	case isContinue:
		return loopContinue, loopFinishID, false, nil
	default:
		return 0, loopFinishID, false, &InvariantError{NodeID: loopFinishID, Op: "loop", Err: ErrNeitherContinueNorBreak}
	}
}

// emit delivers a progress event. Events are serialized across the run.
func (fc *RunFlowContext) emit(evt ProgressEvent) {
	if fc.params.ProgressObserver == nil {
		return
	}
	evt.RunID = fc.runID
	fc.emitMu.Lock()
	defer fc.emitMu.Unlock()
	fc.params.ProgressObserver.OnProgress(evt)
}

// complete signals the end of the progress stream.
func (fc *RunFlowContext) complete() {
	if fc.params.ProgressObserver == nil {
		return
	}
	fc.emitMu.Lock()
	defer fc.emitMu.Unlock()
	fc.params.ProgressObserver.OnComplete()
}

// snapshotErrors returns a copy of the recorded errors.
func (fc *RunFlowContext) snapshotErrors() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]string, len(fc.errors))
	copy(out, fc.errors)
	return out
}
