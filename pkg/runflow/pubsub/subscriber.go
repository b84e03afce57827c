package pubsub

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

// Follow subscribes to topic and delivers the events of one run to
// observer until the run's end-of-run marker arrives or ctx is done.
// Messages of other runs are acknowledged and ignored. observer is
// completed when the marker arrives.
//
// Subscribe before starting the run: most publishers do not replay
// messages sent before a subscription existed.
func Follow(ctx context.Context, subscriber message.Subscriber, topic, runID string, observer runflow.ProgressObserver) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return follow(ctx, messages, runID, observer)
}

func follow(ctx context.Context, messages <-chan *message.Message, runID string, observer runflow.ProgressObserver) error {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription closed before run %s completed", runID)
			}
			if msg.Metadata.Get(MetadataRunID) != runID {
				msg.Ack()
				continue
			}

			evt, isEvent, err := Decode(msg)
			if err != nil {
				msg.Nack()
				return fmt.Errorf("decode message %s: %w", msg.UUID, err)
			}
			msg.Ack()

			if !isEvent {
				observer.OnComplete()
				return nil
			}
			observer.OnProgress(evt)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
