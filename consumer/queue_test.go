package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/routeflow/internal/worker"
	errspkg "github.com/queueworks/routeflow/internal/worker/errors"
	"github.com/queueworks/routeflow/internal/worker/logging"
	"github.com/queueworks/routeflow/internal/worker/metadata"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []worker.Event
}

func (r *eventRecorder) OnEvent(e worker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) snapshot() []worker.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]worker.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, et worker.EventType) worker.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, e := range r.snapshot() {
			if e.Type == et {
				return e
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s event, got %v", et, r.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestQueue(t *testing.T, opts ...QueueOption) (*gochannel.GoChannel, *Queue) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	queue, err := NewQueue("test_topic", pubSub, logging.Nop(), opts...)
	require.NoError(t, err)
	return pubSub, queue
}

func TestNewQueueValidation(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	_, err := NewQueue("", pubSub, logging.Nop())
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)

	_, err = NewQueue("topic", nil, logging.Nop())
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)
}

func TestQueueStartRequiresHandler(t *testing.T) {
	_, queue := newTestQueue(t)

	err := queue.Start(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)
}

func TestQueueDeliversPayloadAndMetadata(t *testing.T) {
	pubSub, queue := newTestQueue(t)

	var mu sync.Mutex
	var gotPayload []byte
	var gotAttrs metadata.Attributes

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {
		mu.Lock()
		defer mu.Unlock()
		gotPayload = payload
		gotAttrs = attrs
	})

	recorder := &eventRecorder{}
	queue.AddListener(recorder)

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop(context.Background())

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"type":"greet","content":{}}`))
	msg.Metadata.Set("traceId", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.NoError(t, pubSub.Publish("test_topic", msg))

	recorder.waitFor(t, worker.EventMessageProcessed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte(`{"type":"greet","content":{}}`), gotPayload)
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", gotAttrs.TraceParent())
}

func TestQueueEventOrdering(t *testing.T) {
	pubSub, queue := newTestQueue(t)

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {})

	recorder := &eventRecorder{}
	queue.AddListener(recorder)

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop(context.Background())

	require.NoError(t, pubSub.Publish("test_topic", message.NewMessage(watermill.NewUUID(), []byte("x"))))

	recorder.waitFor(t, worker.EventMessageProcessed)

	events := recorder.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, worker.EventMessageReceived, events[0].Type)
	assert.Equal(t, worker.EventMessageProcessed, events[1].Type)
}

func TestQueueRecoversCallbackPanic(t *testing.T) {
	pubSub, queue := newTestQueue(t)

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {
		panic("bad handler")
	})

	recorder := &eventRecorder{}
	queue.AddListener(recorder)

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop(context.Background())

	require.NoError(t, pubSub.Publish("test_topic", message.NewMessage(watermill.NewUUID(), []byte("x"))))

	errEvent := recorder.waitFor(t, worker.EventMessageError)
	require.Error(t, errEvent.Err)
	assert.Contains(t, errEvent.Err.Error(), "panicked")

	// The message is still acknowledged and counted as processed.
	recorder.waitFor(t, worker.EventMessageProcessed)
}

func TestQueueEmitsIdle(t *testing.T) {
	_, queue := newTestQueue(t, WithIdleInterval(20*time.Millisecond))

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {})

	recorder := &eventRecorder{}
	queue.AddListener(recorder)

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop(context.Background())

	recorder.waitFor(t, worker.EventIdle)
}

func TestQueueEmitsStoppedOnStop(t *testing.T) {
	_, queue := newTestQueue(t)

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {})

	recorder := &eventRecorder{}
	queue.AddListener(recorder)

	require.NoError(t, queue.Start(context.Background()))
	require.NoError(t, queue.Stop(context.Background()))

	recorder.waitFor(t, worker.EventStopped)
}

func TestQueueStartTwiceIsNoop(t *testing.T) {
	_, queue := newTestQueue(t)

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {})

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop(context.Background())

	assert.NoError(t, queue.Start(context.Background()))
}

func TestQueueStopWithoutStart(t *testing.T) {
	_, queue := newTestQueue(t)

	assert.NoError(t, queue.Stop(context.Background()))
}

func TestQueueSubscribeErrorEmitsErrorEvent(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	require.NoError(t, pubSub.Close())

	queue, err := NewQueue("test_topic", pubSub, logging.Nop())
	require.NoError(t, err)

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {})

	recorder := &eventRecorder{}
	queue.AddListener(recorder)

	err = queue.Start(context.Background())
	require.Error(t, err)

	events := recorder.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, worker.EventError, events[0].Type)
	assert.Error(t, events[0].Err)
}
