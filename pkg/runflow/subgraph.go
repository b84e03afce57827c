package runflow

import "sort"

// RootGraphID identifies the top-level subgraph.
const RootGraphID = "ROOT"

// Subgraph tracks, for each node of one graph instance, which incoming
// edges have delivered: node id -> target connector id -> source
// connector id -> delivered.
//
// A Subgraph is not safe for concurrent use; the engine guards it with
// the run's state lock.
type Subgraph struct {
	nodes map[string]map[string]map[string]bool
}

// NewSubgraph creates an empty subgraph.
func NewSubgraph() *Subgraph {
	return &Subgraph{nodes: make(map[string]map[string]map[string]bool)}
}

// AddNode adds a node with no incoming connectors. Adding an existing
// node is a no-op.
func (g *Subgraph) AddNode(nodeID string) *Subgraph {
	if _, ok := g.nodes[nodeID]; !ok {
		g.nodes[nodeID] = make(map[string]map[string]bool)
	}
	return g
}

// AddIncoming registers an undelivered flag for an edge from
// sourceConnectorID into targetConnectorID on nodeID.
func (g *Subgraph) AddIncoming(nodeID, targetConnectorID, sourceConnectorID string) *Subgraph {
	g.AddNode(nodeID)
	sources, ok := g.nodes[nodeID][targetConnectorID]
	if !ok {
		sources = make(map[string]bool)
		g.nodes[nodeID][targetConnectorID] = sources
	}
	if _, exists := sources[sourceConnectorID]; !exists {
		sources[sourceConnectorID] = false
	}
	return g
}

// Has reports whether the node belongs to this subgraph.
func (g *Subgraph) Has(nodeID string) bool {
	_, ok := g.nodes[nodeID]
	return ok
}

// NodeIDs returns the node ids in sorted order.
func (g *Subgraph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of nodes.
func (g *Subgraph) Len() int {
	return len(g.nodes)
}

// Deliver marks one incoming edge flag as satisfied.
// Returns false if no such flag is tracked.
func (g *Subgraph) Deliver(nodeID, targetConnectorID, sourceConnectorID string) bool {
	sources, ok := g.nodes[nodeID][targetConnectorID]
	if !ok {
		return false
	}
	if _, ok := sources[sourceConnectorID]; !ok {
		return false
	}
	sources[sourceConnectorID] = true
	return true
}

// ConnectorIndegree returns the number of undelivered flags on one
// connector, and whether the connector is tracked at all.
func (g *Subgraph) ConnectorIndegree(nodeID, connectorID string) (int, bool) {
	sources, ok := g.nodes[nodeID][connectorID]
	if !ok {
		return 0, false
	}
	n := 0
	for _, delivered := range sources {
		if !delivered {
			n++
		}
	}
	return n, true
}

// Indegree returns the number of undelivered flags across all of a
// node's incoming connectors.
func (g *Subgraph) Indegree(nodeID string) int {
	n := 0
	for connectorID := range g.nodes[nodeID] {
		d, _ := g.ConnectorIndegree(nodeID, connectorID)
		n += d
	}
	return n
}

// IsReady reports whether a node may be scheduled. Every node needs all
// of its incoming connectors delivered, except LoopFinish which needs
// any one of them.
func (g *Subgraph) IsReady(nodeID string, class NodeClass) bool {
	if !g.Has(nodeID) {
		return false
	}
	if class != ClassLoopFinish {
		return g.Indegree(nodeID) == 0
	}
	for connectorID := range g.nodes[nodeID] {
		if d, _ := g.ConnectorIndegree(nodeID, connectorID); d == 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, flags included.
func (g *Subgraph) Clone() *Subgraph {
	c := NewSubgraph()
	for nodeID, connectors := range g.nodes {
		c.AddNode(nodeID)
		for connectorID, sources := range connectors {
			copied := make(map[string]bool, len(sources))
			for s, d := range sources {
				copied[s] = d
			}
			c.nodes[nodeID][connectorID] = copied
		}
	}
	return c
}

// ComputeSubgraphs partitions a flow into its root subgraph and one
// subgraph per SubroutineStart node. The root subgraph is grown from every
// node with no incoming edges that is not a SubroutineStart.
//
// Traversal problems are reported per node id: ErrGraphCircle for cycles
// and ErrGraphOverlap for nodes reachable from more than one start.
// A non-empty flow with no root start nodes reports ErrGraphCircle under
// RootGraphID.
func ComputeSubgraphs(nodeConfigs map[string]NodeConfig, edges []Edge) (map[string]*Subgraph, map[string][]error) {
	errs := make(map[string][]error)

	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	indegree := make(map[string]int, len(nodeConfigs))
	outgoing := make(map[string][]Edge)
	incoming := make(map[string][]Edge)
	for _, e := range sorted {
		indegree[e.TargetNodeID]++
		outgoing[e.SourceNodeID] = append(outgoing[e.SourceNodeID], e)
		incoming[e.TargetNodeID] = append(incoming[e.TargetNodeID], e)
	}

	nodeIDs := make([]string, 0, len(nodeConfigs))
	for id := range nodeConfigs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	var loopStarts, rootStarts []string
	for _, id := range nodeIDs {
		if nodeConfigs[id].Class == ClassSubroutineStart {
			loopStarts = append(loopStarts, id)
			continue
		}
		if indegree[id] == 0 {
			rootStarts = append(rootStarts, id)
		}
	}

	if len(rootStarts) == 0 && len(nodeIDs) > 0 {
		errs[RootGraphID] = append(errs[RootGraphID], ErrGraphCircle)
		return map[string]*Subgraph{}, errs
	}

	graphs := make(map[string]*Subgraph, len(loopStarts)+1)
	claimed := make(map[string]bool)

	grow := func(graph *Subgraph, starts []string) {
		onStack := make(map[string]bool)
		done := make(map[string]bool)

		var visit func(nodeID string)
		visit = func(nodeID string) {
			if onStack[nodeID] {
				errs[nodeID] = append(errs[nodeID], ErrGraphCircle)
				return
			}
			if done[nodeID] {
				return
			}
			if claimed[nodeID] {
				errs[nodeID] = append(errs[nodeID], ErrGraphOverlap)
			}

			graph.AddNode(nodeID)
			for _, e := range incoming[nodeID] {
				graph.AddIncoming(nodeID, e.TargetConnectorID, e.SourceConnectorID)
			}

			onStack[nodeID] = true
			for _, e := range outgoing[nodeID] {
				visit(e.TargetNodeID)
			}
			onStack[nodeID] = false
			done[nodeID] = true
		}

		for _, id := range starts {
			visit(id)
		}
	}

	root := NewSubgraph()
	grow(root, rootStarts)
	graphs[RootGraphID] = root
	for _, id := range root.NodeIDs() {
		claimed[id] = true
	}

	for _, start := range loopStarts {
		body := NewSubgraph()
		grow(body, []string{start})
		graphs[start] = body
		for _, id := range body.NodeIDs() {
			claimed[id] = true
		}
	}

	return graphs, errs
}
