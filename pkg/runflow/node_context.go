package runflow

import "sort"

// RunNodeContext is one visit of one node. It resolves the node's inputs,
// collects what its runner emits and, once the runner is done, writes the
// outcome into the stores and state tables.
type RunNodeContext struct {
	graph  *RunGraphContext
	flow   *RunFlowContext
	nodeID string
	config NodeConfig
	conns  *nodeConnectors

	outputVariableValues     VariableValues
	outgoingConditionResults ConditionResults
	errors                   []string
	err                      error

	// outcome is the terminal state decided while the runner ran.
	// It is applied to the state table under the flow lock.
	outcome NodeState
}

// beforeRunHook decides from the incoming connector states whether the node
// runs. Any SKIPPED or UNMET incoming connector skips the node. LoopFinish
// inverts the rule and runs as soon as any incoming condition is MET.
// Callers hold the flow's mu.
func (n *RunNodeContext) beforeRunHook() NodeState {
	states := n.graph.states.ConnectorStates
	next := NodeRunning

	if n.config.Class == ClassLoopFinish {
		next = NodeSkipped
		for _, c := range n.conns.inConds {
			if states[c.ID] == ConnectorMet {
				next = NodeRunning
				break
			}
		}
	} else {
		for _, c := range n.conns.incoming() {
			if s := states[c.ID]; s == ConnectorSkipped || s == ConnectorUnmet {
				next = NodeSkipped
				break
			}
		}
	}

	n.graph.states.setNodeState(n.nodeID, next)
	return n.graph.states.NodeStates[n.nodeID]
}

// inputVariableValues resolves the values handed to the runner. Start
// nodes read the seeded values of their own outputs.
// Callers hold the flow's mu.
func (n *RunNodeContext) inputVariableValues() []any {
	if n.config.Class == ClassStart {
		return n.flow.readInputValues(n.conns.outputs)
	}
	return n.flow.readInputValues(n.conns.inputs)
}

// runParams builds the runner input.
func (n *RunNodeContext) runParams(inputValues []any) RunNodeParams {
	return RunNodeParams{
		NodeConfig:          n.config,
		InputVariables:      n.conns.inputs,
		OutputVariables:     n.conns.outputs,
		OutgoingConditions:  n.conns.outConds,
		InputVariableValues: inputValues,
		PreferStreaming:     n.flow.params.PreferStreaming,
	}
}

// valueTargets are the connectors a runner's positional values map onto:
// the inputs of a Finish node, the outputs of every other node.
func (n *RunNodeContext) valueTargets() []Connector {
	if n.config.Class == ClassFinish {
		return n.conns.inputs
	}
	return n.conns.outputs
}

// onRunNodeEvent folds one runner result into the visit and returns the
// matching progress payload.
func (n *RunNodeContext) onRunNodeEvent(result *RunNodeResult) *ProgressUpdate {
	update := &ProgressUpdate{
		Errors:           result.Errors,
		VariableValues:   result.VariableValues,
		ConditionResults: result.ConditionResults,
	}

	n.errors = append(n.errors, result.Errors...)

	if result.VariableValues != nil {
		update.VariableResults = make(VariableValues)
		for i, c := range n.valueTargets() {
			var v any
			if i < len(result.VariableValues) {
				v = result.VariableValues[i]
			}
			n.outputVariableValues[c.ID] = Box{Value: v}
			update.VariableResults[c.ID] = Box{Value: v}
		}
	}

	for id, r := range result.ConditionResults {
		n.outgoingConditionResults[id] = r
	}

	return update
}

// onRunNodeError fails the node.
func (n *RunNodeContext) onRunNodeError(err error) {
	n.err = err
	n.errors = append(n.errors, err.Error())
	n.outcome = NodeFailed
}

// onRunNodeComplete succeeds the node unless it already failed. Only
// Condition nodes decide their own branches; every other node matches all
// of its outgoing conditions.
func (n *RunNodeContext) onRunNodeComplete() {
	if n.outcome != 0 && n.outcome != NodeSucceeded {
		return
	}
	n.outcome = NodeSucceeded
	if n.config.Class != ClassCondition {
		for _, c := range n.conns.outConds {
			n.outgoingConditionResults[c.ID] = ConditionResult{IsConditionMatched: true}
		}
	}
}

// applyOutcome moves the node to its terminal state and records its errors.
// Callers hold the flow's mu.
func (n *RunNodeContext) applyOutcome() {
	if n.outcome != 0 {
		n.graph.states.setNodeState(n.nodeID, n.outcome)
	}
	n.flow.recordErrors(n.errors)
}

// propagateConnectorResults writes the node's values and condition results
// into the run's stores. Finish nodes write under their own input ids;
// other nodes write outputs under their own id, or under the global alias
// alone when the output is global.
// Callers hold the flow's mu.
func (n *RunNodeContext) propagateConnectorResults() {
	if n.config.Class == ClassFinish {
		n.flow.writeVariableValues(n.conns.inputs, n.outputVariableValues, true)
	} else {
		n.flow.writeVariableValues(n.conns.outputs, n.outputVariableValues, false)
	}
	n.flow.writeConditionResults(n.outgoingConditionResults)
}

// propagateRunState fans the node state out to its outgoing connectors,
// their edges and the target connectors of those edges. It only acts on
// terminal nodes and is idempotent. Returns the ids of the nodes owning
// the recomputed target connectors.
// Callers hold the flow's mu.
func (n *RunNodeContext) propagateRunState() []string {
	st := n.graph.states
	nodeState := st.NodeStates[n.nodeID]

	var changed []string
	switch nodeState {
	case NodeSkipped, NodeFailed, NodeInterrupted:
		for _, c := range n.conns.outgoing() {
			st.ConnectorStates[c.ID] = ConnectorSkipped
			changed = append(changed, c.ID)
		}
	case NodeSucceeded:
		for _, c := range n.conns.outputs {
			st.ConnectorStates[c.ID] = ConnectorMet
			changed = append(changed, c.ID)
		}
		for _, c := range n.conns.outConds {
			if n.outgoingConditionResults[c.ID].IsConditionMatched {
				st.ConnectorStates[c.ID] = ConnectorMet
			} else {
				st.ConnectorStates[c.ID] = ConnectorUnmet
			}
			changed = append(changed, c.ID)
		}
	default:
		return nil
	}

	targets := make(map[string]bool)
	for _, id := range changed {
		es, ok := edgeStateFor(st.ConnectorStates[id])
		if !ok {
			continue
		}
		for _, edgeID := range st.SourceConnectorToEdgeIDs[id] {
			st.EdgeStates[edgeID] = es
			targets[st.EdgeIDToTargetConnector[edgeID]] = true
		}
	}

	affected := make(map[string]bool)
	for id := range targets {
		st.ConnectorStates[id] = st.targetConnectorState(id)
		if c, ok := n.flow.params.Connectors[id]; ok {
			affected[c.NodeID] = true
		}
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// handleFinishNode records a Finish node as part of its graph's result.
// Callers hold the flow's mu.
func (n *RunNodeContext) handleFinishNode() {
	if n.config.Class == ClassFinish {
		n.graph.recordFinishNode(n.nodeID, n.conns.inputs)
	}
}
