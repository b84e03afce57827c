package runflow

import "sort"

// RunGraphContext is one instance of a subgraph: the root graph once per
// run, or one iteration of a loop body. It owns the instance's state
// tables, its delivery flags and the queue of ready node ids.
type RunGraphContext struct {
	flow     *RunFlowContext
	graphID  string
	subgraph *Subgraph
	states   *RunFlowStates

	// queue carries ready node ids. Every node is queued at most once, so
	// a buffer of the node count never blocks a send.
	queue  chan string
	queued map[string]bool

	// queuedNodeCount is the number of this instance's nodes that are
	// queued or running. The queue closes when it reaches zero.
	queuedNodeCount int

	finishNodeIDs     []string
	finishVariableIDs []string
}

func newRunGraphContext(fc *RunFlowContext, graphID string, sg *Subgraph, states *RunFlowStates) (*RunGraphContext, error) {
	g := &RunGraphContext{
		flow:     fc,
		graphID:  graphID,
		subgraph: sg,
		states:   states,
		queue:    make(chan string, sg.Len()+1),
		queued:   make(map[string]bool, sg.Len()),
	}

	var initial []string
	for _, id := range sg.NodeIDs() {
		if sg.Indegree(id) == 0 {
			initial = append(initial, id)
		}
	}
	if len(initial) == 0 && sg.Len() > 0 {
		return nil, &InvariantError{NodeID: graphID, Op: "create graph", Err: ErrGraphCircle}
	}

	g.enqueue(initial)
	if g.queuedNodeCount == 0 {
		close(g.queue)
	}
	return g, nil
}

func (g *RunGraphContext) enqueue(ids []string) {
	for _, id := range ids {
		g.queued[id] = true
		g.queue <- id
	}
	g.queuedNodeCount += len(ids)
	g.flow.queuedNodeCount.Add(int64(len(ids)))
}

// createRunNodeContext binds a node visit to this graph instance.
func (g *RunGraphContext) createRunNodeContext(nodeID string) *RunNodeContext {
	return &RunNodeContext{
		graph:                    g,
		flow:                     g.flow,
		nodeID:                   nodeID,
		config:                   g.flow.params.NodeConfigs[nodeID],
		conns:                    g.flow.connectorsOf(nodeID),
		outputVariableValues:     make(VariableValues),
		outgoingConditionResults: make(ConditionResults),
	}
}

// completeEdges delivers every edge leaving the finished node, queues the
// nodes that became ready and closes the queue once nothing is queued or
// running. Returns the newly queued ids.
// Callers hold the flow's mu.
func (g *RunGraphContext) completeEdges(node *RunNodeContext) []string {
	touched := make(map[string]bool)
	for _, c := range node.conns.outgoing() {
		for _, edgeID := range g.states.SourceConnectorToEdgeIDs[c.ID] {
			e := g.flow.edges[edgeID]
			if g.subgraph.Deliver(e.TargetNodeID, e.TargetConnectorID, e.SourceConnectorID) {
				touched[e.TargetNodeID] = true
			}
		}
	}

	candidates := make([]string, 0, len(touched))
	for id := range touched {
		candidates = append(candidates, id)
	}
	sort.Strings(candidates)

	var next []string
	for _, id := range candidates {
		if g.queued[id] || g.states.NodeStates[id] != NodePending {
			continue
		}
		if g.subgraph.IsReady(id, g.flow.params.NodeConfigs[id].Class) {
			next = append(next, id)
		}
	}

	g.queuedNodeCount--
	g.flow.queuedNodeCount.Add(-1)
	g.enqueue(next)

	if len(next) == 0 && g.queuedNodeCount == 0 {
		close(g.queue)
	}
	return next
}

// recordFinishNode adds a Finish node and its inputs to the result set.
// Callers hold the flow's mu.
func (g *RunGraphContext) recordFinishNode(nodeID string, inputs []Connector) {
	g.finishNodeIDs = append(g.finishNodeIDs, nodeID)
	for _, c := range inputs {
		g.finishVariableIDs = append(g.finishVariableIDs, c.ID)
	}
}

// result assembles the instance's RunFlowResult from the recorded Finish
// inputs that hold a value, plus every node error of the run.
func (g *RunGraphContext) result() *RunFlowResult {
	fc := g.flow
	fc.mu.Lock()
	defer fc.mu.Unlock()

	values := make(VariableValues, len(g.finishVariableIDs))
	for _, id := range g.finishVariableIDs {
		if b, ok := fc.variableValue(id); ok {
			values[id] = b
		}
	}
	errs := make([]string, len(fc.errors))
	copy(errs, fc.errors)
	return &RunFlowResult{Errors: errs, VariableValues: values}
}
