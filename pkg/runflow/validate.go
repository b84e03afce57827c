package runflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks RunFlowParams before a run: required fields on every
// node, connector and edge, that every id reference resolves, that edge
// handles point the right way, that loop nodes name a SubroutineStart,
// and that a runner exists for every node type the engine cannot run
// itself. All problems are returned joined; each is a *ValidationError.
func Validate(params RunFlowParams) error {
	var errs []error
	add := func(subject string, err error) {
		errs = append(errs, &ValidationError{Subject: subject, Err: err})
	}

	for _, id := range sortedKeys(params.NodeConfigs) {
		nc := params.NodeConfigs[id]
		for _, err := range structErrors(nc) {
			add(id, err)
		}
		if nc.ID != "" && nc.ID != id {
			add(id, fmt.Errorf("node config id %q does not match its key", nc.ID))
		}
		if nc.Class == ClassSubroutine {
			start, ok := params.NodeConfigs[nc.LoopStartNodeID]
			switch {
			case nc.LoopStartNodeID == "":
				add(id, ErrLoopStartRequired)
			case !ok:
				add(id, fmt.Errorf("loop start %s: %w", nc.LoopStartNodeID, ErrNodeNotFound))
			case start.Class != ClassSubroutineStart:
				add(id, fmt.Errorf("loop start %s is %s, not SubroutineStart", nc.LoopStartNodeID, start.Class))
			}
		}
		if needsRunner(nc.Class) {
			if params.Runners == nil {
				add(id, fmt.Errorf("%w: %s", ErrRunnerNotFound, nc.Type))
			} else if _, ok := params.Runners.Runner(nc.Type); !ok {
				add(id, fmt.Errorf("%w: %s", ErrRunnerNotFound, nc.Type))
			}
		}
	}

	for _, id := range sortedKeys(params.Connectors) {
		c := params.Connectors[id]
		for _, err := range structErrors(c) {
			add(id, err)
		}
		if c.NodeID != "" {
			if _, ok := params.NodeConfigs[c.NodeID]; !ok {
				add(id, fmt.Errorf("owner %s: %w", c.NodeID, ErrNodeNotFound))
			}
		}
	}

	for _, e := range params.Edges {
		subject := e.ID
		if subject == "" {
			subject = "edge"
		}
		for _, err := range structErrors(e) {
			add(subject, err)
		}
		if e.SourceConnectorID == "" || e.TargetConnectorID == "" {
			add(subject, ErrMissingEdgeHandle)
			continue
		}
		checkEnd := func(nodeID, connectorID string, wantIncoming bool) {
			if _, ok := params.NodeConfigs[nodeID]; !ok {
				add(subject, fmt.Errorf("node %s: %w", nodeID, ErrNodeNotFound))
			}
			c, ok := params.Connectors[connectorID]
			if !ok {
				add(subject, fmt.Errorf("connector %s: %w", connectorID, ErrConnectorNotFound))
				return
			}
			if c.NodeID != nodeID {
				add(subject, fmt.Errorf("connector %s belongs to node %s, not %s", connectorID, c.NodeID, nodeID))
			}
			if c.Kind.IsIncoming() != wantIncoming {
				add(subject, fmt.Errorf("connector %s of kind %s cannot be used on this end of an edge", connectorID, c.Kind))
			}
		}
		checkEnd(e.SourceNodeID, e.SourceConnectorID, false)
		checkEnd(e.TargetNodeID, e.TargetConnectorID, true)
	}

	return errors.Join(errs...)
}

// needsRunner reports whether a node class requires a registered runner.
// Start, Finish and structural classes have built-in behavior.
func needsRunner(class NodeClass) bool {
	switch class {
	case ClassStart, ClassFinish, ClassSubroutine, ClassSubroutineStart, ClassLoopFinish:
		return false
	default:
		return true
	}
}

func structErrors(s any) []error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []error{err}
	}
	out := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, fmt.Errorf("field %s failed on %q", fe.Field(), fe.Tag()))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
