package runflow

import (
	"fmt"
	"sort"
)

// NodeState is the run state of a node. States only move forward:
// Pending, then Running, then one of the terminal states.
type NodeState int

const (
	NodePending NodeState = iota
	NodeRunning
	NodeSucceeded
	NodeFailed
	NodeSkipped
	NodeInterrupted
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case NodePending:
		return "PENDING"
	case NodeRunning:
		return "RUNNING"
	case NodeSucceeded:
		return "SUCCEEDED"
	case NodeFailed:
		return "FAILED"
	case NodeSkipped:
		return "SKIPPED"
	case NodeInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the state is final.
func (s NodeState) IsTerminal() bool {
	return s >= NodeSucceeded
}

// rank orders states for the forward-only rule.
func (s NodeState) rank() int {
	switch s {
	case NodePending:
		return 0
	case NodeRunning:
		return 1
	default:
		return 2
	}
}

// ConnectorState is the run state of a connector.
type ConnectorState int

const (
	ConnectorUnconnected ConnectorState = iota
	ConnectorPending
	ConnectorMet
	ConnectorUnmet
	ConnectorSkipped
)

// String returns the state name.
func (s ConnectorState) String() string {
	switch s {
	case ConnectorUnconnected:
		return "UNCONNECTED"
	case ConnectorPending:
		return "PENDING"
	case ConnectorMet:
		return "MET"
	case ConnectorUnmet:
		return "UNMET"
	case ConnectorSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// EdgeState is the run state of an edge.
type EdgeState int

const (
	EdgePending EdgeState = iota
	EdgeMet
	EdgeUnmet
	EdgeSkipped
)

// String returns the state name.
func (s EdgeState) String() string {
	switch s {
	case EdgePending:
		return "PENDING"
	case EdgeMet:
		return "MET"
	case EdgeUnmet:
		return "UNMET"
	case EdgeSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// edgeStateFor maps a settled source connector state onto its edges.
func edgeStateFor(s ConnectorState) (EdgeState, bool) {
	switch s {
	case ConnectorMet:
		return EdgeMet, true
	case ConnectorUnmet:
		return EdgeUnmet, true
	case ConnectorSkipped:
		return EdgeSkipped, true
	default:
		return EdgePending, false
	}
}

// RunFlowStates holds the node, connector and edge state tables of one
// graph instance plus the edge indices derived from the flow.
// The index maps are shared between clones and never mutated after creation.
type RunFlowStates struct {
	NodeStates      map[string]NodeState
	ConnectorStates map[string]ConnectorState
	EdgeStates      map[string]EdgeState

	SourceConnectorToEdgeIDs map[string][]string
	EdgeIDToTargetConnector  map[string]string
	TargetConnectorToEdgeIDs map[string][]string
}

// NewRunFlowStates builds the initial state tables: every node PENDING,
// every edge PENDING, connectors PENDING when an edge touches them and
// UNCONNECTED otherwise.
func NewRunFlowStates(params *RunFlowParams) (*RunFlowStates, error) {
	s := &RunFlowStates{
		NodeStates:               make(map[string]NodeState, len(params.NodeConfigs)),
		ConnectorStates:          make(map[string]ConnectorState, len(params.Connectors)),
		EdgeStates:               make(map[string]EdgeState, len(params.Edges)),
		SourceConnectorToEdgeIDs: make(map[string][]string),
		EdgeIDToTargetConnector:  make(map[string]string, len(params.Edges)),
		TargetConnectorToEdgeIDs: make(map[string][]string),
	}

	for id := range params.NodeConfigs {
		s.NodeStates[id] = NodePending
	}
	for id := range params.Connectors {
		s.ConnectorStates[id] = ConnectorUnconnected
	}

	for _, e := range params.Edges {
		if e.SourceConnectorID == "" || e.TargetConnectorID == "" {
			return nil, &InvariantError{Op: "init", Err: ErrMissingEdgeHandle}
		}
		s.SourceConnectorToEdgeIDs[e.SourceConnectorID] = append(s.SourceConnectorToEdgeIDs[e.SourceConnectorID], e.ID)
		s.TargetConnectorToEdgeIDs[e.TargetConnectorID] = append(s.TargetConnectorToEdgeIDs[e.TargetConnectorID], e.ID)
		s.EdgeIDToTargetConnector[e.ID] = e.TargetConnectorID
		s.EdgeStates[e.ID] = EdgePending
		s.ConnectorStates[e.SourceConnectorID] = ConnectorPending
		s.ConnectorStates[e.TargetConnectorID] = ConnectorPending
	}

	for _, ids := range s.SourceConnectorToEdgeIDs {
		sort.Strings(ids)
	}
	for _, ids := range s.TargetConnectorToEdgeIDs {
		sort.Strings(ids)
	}

	return s, nil
}

// Clone copies the state tables. Index maps are shared.
func (s *RunFlowStates) Clone() *RunFlowStates {
	c := &RunFlowStates{
		NodeStates:               make(map[string]NodeState, len(s.NodeStates)),
		ConnectorStates:          make(map[string]ConnectorState, len(s.ConnectorStates)),
		EdgeStates:               make(map[string]EdgeState, len(s.EdgeStates)),
		SourceConnectorToEdgeIDs: s.SourceConnectorToEdgeIDs,
		EdgeIDToTargetConnector:  s.EdgeIDToTargetConnector,
		TargetConnectorToEdgeIDs: s.TargetConnectorToEdgeIDs,
	}
	for k, v := range s.NodeStates {
		c.NodeStates[k] = v
	}
	for k, v := range s.ConnectorStates {
		c.ConnectorStates[k] = v
	}
	for k, v := range s.EdgeStates {
		c.EdgeStates[k] = v
	}
	return c
}

// setNodeState moves a node forward. Backward moves and changes to an
// already terminal node are refused.
func (s *RunFlowStates) setNodeState(nodeID string, next NodeState) bool {
	cur := s.NodeStates[nodeID]
	if cur.IsTerminal() || next.rank() <= cur.rank() {
		return false
	}
	s.NodeStates[nodeID] = next
	return true
}

// targetConnectorState folds the states of every edge feeding a target
// connector: any PENDING wins, then MET, then UNMET, else SKIPPED.
func (s *RunFlowStates) targetConnectorState(connectorID string) ConnectorState {
	var met, unmet bool
	for _, edgeID := range s.TargetConnectorToEdgeIDs[connectorID] {
		switch s.EdgeStates[edgeID] {
		case EdgePending:
			return ConnectorPending
		case EdgeMet:
			met = true
		case EdgeUnmet:
			unmet = true
		}
	}
	switch {
	case met:
		return ConnectorMet
	case unmet:
		return ConnectorUnmet
	default:
		return ConnectorSkipped
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s NodeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *NodeState) UnmarshalText(text []byte) error {
	for _, candidate := range []NodeState{NodePending, NodeRunning, NodeSucceeded, NodeFailed, NodeSkipped, NodeInterrupted} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown node state %q", string(text))
}
