package runflow

import (
	"fmt"
	"sync"
)

// ProgressEventType identifies the kind of a ProgressEvent.
type ProgressEventType int

const (
	ProgressStarted ProgressEventType = iota + 1
	ProgressUpdated
	ProgressFinished
)

// String returns the event type name.
func (t ProgressEventType) String() string {
	switch t {
	case ProgressStarted:
		return "Started"
	case ProgressUpdated:
		return "Updated"
	case ProgressFinished:
		return "Finished"
	default:
		return fmt.Sprintf("ProgressEventType(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ProgressEventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ProgressEventType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Started":
		*t = ProgressStarted
	case "Updated":
		*t = ProgressUpdated
	case "Finished":
		*t = ProgressFinished
	default:
		return fmt.Errorf("unknown progress event type %q", string(text))
	}
	return nil
}

// ProgressUpdate is the payload of an Updated event.
type ProgressUpdate struct {
	Errors         []string `json:"errors,omitempty"`
	VariableValues []any    `json:"variableValues,omitempty"`

	// VariableResults keys the positional VariableValues by connector id.
	VariableResults  VariableValues   `json:"variableResults,omitempty"`
	ConditionResults ConditionResults `json:"conditionResults,omitempty"`
}

// ProgressEvent is one node-level notification emitted during a run.
type ProgressEvent struct {
	Type    ProgressEventType `json:"type"`
	RunID   string            `json:"runId"`
	GraphID string            `json:"graphId"`
	NodeID  string            `json:"nodeId"`

	// State is the node state at the time of the event.
	State NodeState `json:"state"`

	// Result is set on Updated events only.
	Result *ProgressUpdate `json:"result,omitempty"`
}

// ProgressObserver receives a run's progress events. OnProgress is never
// called concurrently for one run. OnComplete is called once, after the
// last event.
type ProgressObserver interface {
	OnProgress(evt ProgressEvent)
	OnComplete()
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(evt ProgressEvent)

// OnProgress calls f.
func (f ProgressFunc) OnProgress(evt ProgressEvent) { f(evt) }

// OnComplete does nothing.
func (f ProgressFunc) OnComplete() {}

// Observers fans every event out to each observer in order.
func Observers(observers ...ProgressObserver) ProgressObserver {
	return multiObserver(observers)
}

type multiObserver []ProgressObserver

func (m multiObserver) OnProgress(evt ProgressEvent) {
	for _, o := range m {
		if o != nil {
			o.OnProgress(evt)
		}
	}
}

func (m multiObserver) OnComplete() {
	for _, o := range m {
		if o != nil {
			o.OnComplete()
		}
	}
}

// ProgressCollector records every event it observes. Safe for concurrent use.
type ProgressCollector struct {
	mu        sync.Mutex
	events    []ProgressEvent
	completed bool
}

// OnProgress records evt.
func (c *ProgressCollector) OnProgress(evt ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

// OnComplete marks the stream complete.
func (c *ProgressCollector) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
}

// Events returns a copy of the recorded events.
func (c *ProgressCollector) Events() []ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ProgressEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Completed reports whether OnComplete was called.
func (c *ProgressCollector) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// ForNode returns the recorded events of one node.
func (c *ProgressCollector) ForNode(nodeID string) []ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ProgressEvent
	for _, evt := range c.events {
		if evt.NodeID == nodeID {
			out = append(out, evt)
		}
	}
	return out
}
