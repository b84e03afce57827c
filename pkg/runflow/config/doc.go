/*
Package config holds the on-disk side of runflow: the typed accessor over
a node's type-specific fields, and loaders for flow definition files.

# Node data

Every node config carries fields that only its runner understands (a
template string, a model name, a loop limit). The engine passes them
through untouched as a Config, and runners read them with defaults:

	content := params.NodeConfig.Data.String("content", "")
	limit := params.NodeConfig.Data.Int("limit", 10)

Accessors never fail. A missing key, or a value of the wrong type, yields
the default. Int accepts whole float64 values so JSON-decoded numbers work.

# Flow files

A flow file is canvas data in YAML or JSON:

	nodeConfigs:
	  start:
	    class: Start
	    type: InputNode
	  greet:
	    class: Process
	    type: TextTemplate
	    content: "Hello"
	connectors:
	  start/out:
	    type: NodeOutput
	    nodeId: start
	edges:
	  - id: e1
	    source: start
	    sourceHandle: start/cond
	    target: greet
	    targetHandle: greet/in
	variableValues:
	  start/out: world

Load it with LoadFlowFile and convert it with runflow.ParamsFromFlowFile.
Node fields other than nodeId, type, class (or kind) and loopStartNodeId
end up in the node's Data.
*/
package config
