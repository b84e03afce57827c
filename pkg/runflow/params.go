package runflow

import (
	"fmt"

	"github.com/randalmurphal/runflow/pkg/runflow/config"
)

// RunFlowParams is the fully resolved input of one run.
type RunFlowParams struct {
	Edges       []Edge
	NodeConfigs map[string]NodeConfig
	Connectors  map[string]Connector

	// InputVariableValues seeds the variable store. Start nodes read it
	// keyed by their own output connector ids.
	InputVariableValues VariableValues

	// Graphs are the subgraphs keyed by RootGraphID and SubroutineStart
	// node id. Computed with ComputeSubgraphs when nil.
	Graphs map[string]*Subgraph

	PreferStreaming  bool
	ProgressObserver ProgressObserver
	Runners          RunnerLookup
}

// RunFlowResult is the outcome of a run that was not aborted.
type RunFlowResult struct {
	// Errors aggregates every node-level error message of the run.
	Errors []string `json:"errors"`

	// VariableValues holds the input values of the root graph's Finish nodes.
	VariableValues VariableValues `json:"variableValues"`
}

// ParamsFromFlowFile converts a loaded flow definition into RunFlowParams.
// Runners and the progress observer are left for the caller to set.
func ParamsFromFlowFile(ff *config.FlowFile) (RunFlowParams, error) {
	params := RunFlowParams{
		Edges:               make([]Edge, 0, len(ff.Edges)),
		NodeConfigs:         make(map[string]NodeConfig, len(ff.NodeConfigs)),
		Connectors:          make(map[string]Connector, len(ff.Connectors)),
		InputVariableValues: make(VariableValues, len(ff.VariableValues)),
		PreferStreaming:     ff.PreferStreaming,
	}

	for id, n := range ff.NodeConfigs {
		class, err := ParseNodeClass(n.Class)
		if err != nil {
			return RunFlowParams{}, fmt.Errorf("node %s: %w", id, err)
		}
		params.NodeConfigs[id] = NodeConfig{
			ID:              n.NodeID,
			Type:            n.Type,
			Class:           class,
			LoopStartNodeID: n.LoopStartNodeID,
			Data:            n.Data,
		}
	}

	for id, c := range ff.Connectors {
		kind, err := ParseConnectorKind(c.Type)
		if err != nil {
			return RunFlowParams{}, fmt.Errorf("connector %s: %w", id, err)
		}
		params.Connectors[id] = Connector{
			ID:               c.ID,
			NodeID:           c.NodeID,
			Kind:             kind,
			Index:            c.Index,
			Name:             c.Name,
			IsGlobal:         c.IsGlobal,
			GlobalVariableID: c.GlobalVariableID,
		}
	}

	for _, e := range ff.Edges {
		params.Edges = append(params.Edges, Edge{
			ID:                e.ID,
			SourceNodeID:      e.Source,
			SourceConnectorID: e.SourceHandle,
			TargetNodeID:      e.Target,
			TargetConnectorID: e.TargetHandle,
		})
	}

	for id, v := range ff.VariableValues {
		params.InputVariableValues[id] = Box{Value: v}
	}

	return params, nil
}

// LoadFlowFile reads a YAML or JSON flow definition into RunFlowParams.
func LoadFlowFile(path string) (RunFlowParams, error) {
	ff, err := config.LoadFlowFile(path)
	if err != nil {
		return RunFlowParams{}, err
	}
	return ParamsFromFlowFile(ff)
}
