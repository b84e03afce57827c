package pubsub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/pubsub"
)

// TestFollow tests that a follower sees exactly one run's events.
func TestFollow(t *testing.T) {
	ch := newTestChannel(t)

	// An unrelated run shares the topic.
	other := pubsub.NewObserver(ch, pubsub.WithLogger(discardLogger()))
	other.OnProgress(runflow.ProgressEvent{Type: runflow.ProgressStarted, RunID: "run-other", NodeID: "x"})
	other.OnComplete()

	obs := pubsub.NewObserver(ch, pubsub.WithLogger(discardLogger()))
	params := greetingFlow()
	params.ProgressObserver = obs
	_, err := runflow.RunFlow(context.Background(), params,
		runflow.WithRunID("run-follow"),
		runflow.WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collector := &runflow.ProgressCollector{}
	require.NoError(t, pubsub.Follow(ctx, ch, pubsub.DefaultTopic, "run-follow", collector))

	assert.True(t, collector.Completed())
	events := collector.Events()
	require.Len(t, events, 9)
	for _, evt := range events {
		assert.Equal(t, "run-follow", evt.RunID)
	}
	assert.Equal(t, "finish", events[8].NodeID)
	assert.Equal(t, runflow.ProgressFinished, events[8].Type)
	assert.Equal(t, runflow.NodeSucceeded, events[8].State)
}

// TestFollow_ContextDone tests that a follower gives up with ctx.
func TestFollow_ContextDone(t *testing.T) {
	ch := newTestChannel(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	collector := &runflow.ProgressCollector{}
	err := pubsub.Follow(ctx, ch, pubsub.DefaultTopic, "run-never", collector)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, collector.Completed())
}
