package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlowFile is a flow definition as stored on disk: the canvas data of a
// flow plus the values to seed its run with.
type FlowFile struct {
	Edges       []EdgeDef               `json:"edges" yaml:"edges"`
	NodeConfigs map[string]NodeDef      `json:"nodeConfigs" yaml:"nodeConfigs"`
	Connectors  map[string]ConnectorDef `json:"connectors" yaml:"connectors"`

	// VariableValues seeds the run, keyed by connector id or global
	// variable id. Values are unboxed.
	VariableValues map[string]any `json:"variableValues,omitempty" yaml:"variableValues,omitempty"`

	PreferStreaming bool `json:"preferStreaming,omitempty" yaml:"preferStreaming,omitempty"`
}

// EdgeDef is an edge as stored on disk.
type EdgeDef struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle"`
	Target       string `json:"target" yaml:"target"`
	TargetHandle string `json:"targetHandle" yaml:"targetHandle"`
}

// ConnectorDef is a connector as stored on disk.
type ConnectorDef struct {
	ID               string  `json:"id" yaml:"id"`
	NodeID           string  `json:"nodeId" yaml:"nodeId"`
	Type             string  `json:"type" yaml:"type"`
	Index            int     `json:"index" yaml:"index"`
	Name             string  `json:"name,omitempty" yaml:"name,omitempty"`
	IsGlobal         bool    `json:"isGlobal,omitempty" yaml:"isGlobal,omitempty"`
	GlobalVariableID *string `json:"globalVariableId,omitempty" yaml:"globalVariableId,omitempty"`
}

// NodeDef is a node config as stored on disk. The scheduling fields are
// lifted out; everything else stays in Data for the node's runner.
type NodeDef struct {
	NodeID          string
	Type            string
	Class           string
	LoopStartNodeID string
	Data            Config
}

// reserved keys are lifted into NodeDef fields and removed from Data.
var reserved = map[string]bool{
	"nodeId":          true,
	"type":            true,
	"class":           true,
	"kind":            true,
	"loopStartNodeId": true,
}

func nodeDefFromMap(m map[string]any) NodeDef {
	cfg := New(m)
	def := NodeDef{
		NodeID:          cfg.String("nodeId", ""),
		Type:            cfg.String("type", ""),
		Class:           cfg.String("class", cfg.String("kind", "")),
		LoopStartNodeID: cfg.String("loopStartNodeId", ""),
	}
	data := make(map[string]any, len(m))
	for k, v := range m {
		if !reserved[k] {
			data[k] = v
		}
	}
	def.Data = New(data)
	return def
}

func (d NodeDef) toMap() map[string]any {
	m := make(map[string]any, len(d.Data.Raw())+4)
	for k, v := range d.Data.Raw() {
		m[k] = v
	}
	m["nodeId"] = d.NodeID
	m["type"] = d.Type
	m["class"] = d.Class
	if d.LoopStartNodeID != "" {
		m["loopStartNodeId"] = d.LoopStartNodeID
	}
	return m
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *NodeDef) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = nodeDefFromMap(m)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d NodeDef) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toMap())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *NodeDef) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	*d = nodeDefFromMap(m)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d NodeDef) MarshalYAML() (any, error) {
	return d.toMap(), nil
}

// LoadFlowFile reads a flow definition, choosing the format by extension.
// Supported extensions: .yaml, .yml, .json
func LoadFlowFile(path string) (*FlowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return ParseFlowYAML(data)
	case ".json":
		return ParseFlowJSON(data)
	default:
		return nil, fmt.Errorf("unsupported flow file extension: %s", ext)
	}
}

// ParseFlowYAML parses a YAML flow definition.
func ParseFlowYAML(data []byte) (*FlowFile, error) {
	var ff FlowFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse yaml flow: %w", err)
	}
	ff.fillIDs()
	return &ff, nil
}

// ParseFlowJSON parses a JSON flow definition.
func ParseFlowJSON(data []byte) (*FlowFile, error) {
	var ff FlowFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse json flow: %w", err)
	}
	ff.fillIDs()
	return &ff, nil
}

// fillIDs defaults node and connector ids to their map keys.
func (ff *FlowFile) fillIDs() {
	for id, n := range ff.NodeConfigs {
		if n.NodeID == "" {
			n.NodeID = id
			ff.NodeConfigs[id] = n
		}
	}
	for id, c := range ff.Connectors {
		if c.ID == "" {
			c.ID = id
			ff.Connectors[id] = c
		}
	}
}
