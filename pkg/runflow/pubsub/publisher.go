// Package pubsub publishes the progress events of flow runs onto a
// watermill message.Publisher, so that other processes (a UI backend, a
// log shipper) can follow a run as it happens.
//
// Every event becomes one message whose payload is the JSON form of the
// runflow.ProgressEvent. Routing information travels in the metadata:
//
//	run_id      the run the event belongs to
//	graph_id    the graph instance ("ROOT" or a loop body)
//	node_id     the node the event is about
//	event_type  Started, Updated or Finished
//	node_state  the node state at the time of the event
//
// The end of a run is published as a message with event_type "Completed"
// and an empty payload.
package pubsub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "runflow.progress"

// Metadata keys set on every published message.
const (
	MetadataRunID     = "run_id"
	MetadataGraphID   = "graph_id"
	MetadataNodeID    = "node_id"
	MetadataEventType = "event_type"
	MetadataNodeState = "node_state"
)

// CompletedEventType marks the message published by OnComplete.
const CompletedEventType = "Completed"

// Observer is a ProgressObserver that publishes every event.
//
// OnProgress cannot fail, so publish errors are logged and the first one
// is kept for Err.
//
// An Observer may serve consecutive runs, but not overlapping ones: the
// completion marker carries the run id of the events seen since the
// previous marker.
type Observer struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger

	// fallbackRunID labels the marker of a run that emitted no events.
	fallbackRunID string
	runID         string

	mu  sync.Mutex
	err error
}

var _ runflow.ProgressObserver = (*Observer)(nil)

// Option configures an Observer.
type Option func(*Observer)

// WithTopic sets the topic events are published to.
// Default: DefaultTopic
func WithTopic(topic string) Option {
	return func(o *Observer) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// WithLogger sets the logger for publish failures.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRunID sets the run id of the completion marker for runs that emit
// no events, such as a flow without nodes.
func WithRunID(runID string) Option {
	return func(o *Observer) {
		o.fallbackRunID = runID
	}
}

// NewObserver creates an observer publishing to publisher.
func NewObserver(publisher message.Publisher, opts ...Option) *Observer {
	o := &Observer{
		publisher: publisher,
		topic:     DefaultTopic,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnProgress publishes evt.
func (o *Observer) OnProgress(evt runflow.ProgressEvent) {
	o.mu.Lock()
	if o.runID == "" {
		o.runID = evt.RunID
	}
	o.mu.Unlock()

	payload, err := json.Marshal(evt)
	if err != nil {
		o.fail(evt.RunID, err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataRunID, evt.RunID)
	msg.Metadata.Set(MetadataGraphID, evt.GraphID)
	msg.Metadata.Set(MetadataNodeID, evt.NodeID)
	msg.Metadata.Set(MetadataEventType, evt.Type.String())
	msg.Metadata.Set(MetadataNodeState, evt.State.String())

	if err := o.publisher.Publish(o.topic, msg); err != nil {
		o.fail(evt.RunID, err)
	}
}

// OnComplete publishes the end-of-run marker and forgets the run.
func (o *Observer) OnComplete() {
	o.mu.Lock()
	runID := o.runID
	if runID == "" {
		runID = o.fallbackRunID
	}
	o.runID = ""
	o.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(MetadataRunID, runID)
	msg.Metadata.Set(MetadataEventType, CompletedEventType)

	if err := o.publisher.Publish(o.topic, msg); err != nil {
		o.fail(runID, err)
	}
}

// Err returns the first publish error, if any.
func (o *Observer) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Observer) fail(runID string, err error) {
	o.logger.Error("progress publish failed",
		slog.String("run_id", runID),
		slog.String("topic", o.topic),
		slog.String("error", err.Error()),
	)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

// Decode turns a published message back into a progress event.
// ok is false for the end-of-run marker.
func Decode(msg *message.Message) (evt runflow.ProgressEvent, ok bool, err error) {
	if msg.Metadata.Get(MetadataEventType) == CompletedEventType {
		return runflow.ProgressEvent{}, false, nil
	}
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return runflow.ProgressEvent{}, false, err
	}
	return evt, true, nil
}
