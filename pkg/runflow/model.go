package runflow

import (
	"fmt"

	"github.com/randalmurphal/runflow/pkg/runflow/config"
)

// NodeClass determines how the engine schedules a node. It says nothing
// about what the node computes; that is the job of the node type's runner.
type NodeClass int

const (
	ClassStart NodeClass = iota + 1
	ClassProcess
	ClassFinish
	ClassCondition
	ClassSubroutine
	ClassSubroutineStart
	ClassLoopFinish
)

var nodeClassNames = map[NodeClass]string{
	ClassStart:           "Start",
	ClassProcess:         "Process",
	ClassFinish:          "Finish",
	ClassCondition:       "Condition",
	ClassSubroutine:      "Subroutine",
	ClassSubroutineStart: "SubroutineStart",
	ClassLoopFinish:      "LoopFinish",
}

// String returns the class name as it appears in flow definitions.
func (c NodeClass) String() string {
	if name, ok := nodeClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("NodeClass(%d)", int(c))
}

// ParseNodeClass converts a class name ("Start", "Process", ...) to a NodeClass.
func ParseNodeClass(s string) (NodeClass, error) {
	for c, name := range nodeClassNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownNodeClass, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c NodeClass) MarshalText() ([]byte, error) {
	if _, ok := nodeClassNames[c]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNodeClass, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *NodeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ConnectorKind identifies the role of a connector on its node.
type ConnectorKind int

const (
	NodeInput ConnectorKind = iota + 1
	NodeOutput
	OutCondition
	InCondition
)

var connectorKindNames = map[ConnectorKind]string{
	NodeInput:    "NodeInput",
	NodeOutput:   "NodeOutput",
	OutCondition: "OutCondition",
	InCondition:  "InCondition",
}

// String returns the kind name as it appears in flow definitions.
func (k ConnectorKind) String() string {
	if name, ok := connectorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ConnectorKind(%d)", int(k))
}

// ParseConnectorKind converts a kind name to a ConnectorKind.
func ParseConnectorKind(s string) (ConnectorKind, error) {
	for k, name := range connectorKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownConnectorKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ConnectorKind) MarshalText() ([]byte, error) {
	if _, ok := connectorKindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownConnectorKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ConnectorKind) UnmarshalText(text []byte) error {
	parsed, err := ParseConnectorKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsIncoming reports whether connectors of this kind receive edges.
func (k ConnectorKind) IsIncoming() bool {
	return k == NodeInput || k == InCondition
}

// NodeConfig is the fully resolved configuration of one node.
type NodeConfig struct {
	ID    string    `json:"nodeId" yaml:"nodeId" validate:"required"`
	Type  string    `json:"type" yaml:"type" validate:"required"`
	Class NodeClass `json:"class" yaml:"class" validate:"required"`

	// LoopStartNodeID names the SubroutineStart node of the loop body.
	// Only meaningful for ClassSubroutine.
	LoopStartNodeID string `json:"loopStartNodeId,omitempty" yaml:"loopStartNodeId,omitempty"`

	// Data holds the node-type specific fields. The engine never reads it.
	Data config.Config `json:"-" yaml:"-"`
}

// Connector is a port on a node.
type Connector struct {
	ID     string        `json:"id" yaml:"id" validate:"required"`
	NodeID string        `json:"nodeId" yaml:"nodeId" validate:"required"`
	Kind   ConnectorKind `json:"type" yaml:"type" validate:"required"`
	Index  int           `json:"index" yaml:"index"`
	Name   string        `json:"name,omitempty" yaml:"name,omitempty"`

	// IsGlobal routes a NodeInput/NodeOutput through the global variable
	// store under GlobalVariableID instead of through edges.
	IsGlobal         bool    `json:"isGlobal,omitempty" yaml:"isGlobal,omitempty"`
	GlobalVariableID *string `json:"globalVariableId,omitempty" yaml:"globalVariableId,omitempty"`
}

// Edge connects exactly one source connector to one target connector.
type Edge struct {
	ID                string `json:"id" yaml:"id" validate:"required"`
	SourceNodeID      string `json:"source" yaml:"source" validate:"required"`
	SourceConnectorID string `json:"sourceHandle" yaml:"sourceHandle" validate:"required"`
	TargetNodeID      string `json:"target" yaml:"target" validate:"required"`
	TargetConnectorID string `json:"targetHandle" yaml:"targetHandle" validate:"required"`
}

// Box wraps a produced value. A present Box holding nil means the value
// was produced as null; an absent key means it was never produced.
type Box struct {
	Value any `json:"value" yaml:"value"`
}

// VariableValues maps connector ids or global variable ids to values.
type VariableValues map[string]Box

// Clone returns a shallow copy.
func (v VariableValues) Clone() VariableValues {
	out := make(VariableValues, len(v))
	for k, b := range v {
		out[k] = b
	}
	return out
}

// ConditionResult is the outcome of one outgoing condition.
type ConditionResult struct {
	IsConditionMatched bool `json:"isConditionMatched" yaml:"isConditionMatched"`
}

// ConditionResults maps condition connector ids to their outcome.
type ConditionResults map[string]ConditionResult

// GlobalID is a convenience for building *string GlobalVariableID values.
func GlobalID(id string) *string {
	return &id
}
