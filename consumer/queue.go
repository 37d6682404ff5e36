package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/queueworks/routeflow/internal/worker"
	errspkg "github.com/queueworks/routeflow/internal/worker/errors"
	"github.com/queueworks/routeflow/internal/worker/logging"
	"github.com/queueworks/routeflow/internal/worker/metadata"
)

// Queue consumes one topic from a watermill subscriber and drives the
// worker's delivery callback. Messages are acknowledged after the callback
// returns, so the callback must not block indefinitely. The callback itself
// never reports an outcome; processing results travel through the worker's
// lifecycle events, and the queue adds its own received/processed/idle/
// stopped events around them.
type Queue struct {
	topic      string
	subscriber message.Subscriber
	logger     logging.ServiceLogger
	idleAfter  time.Duration

	listenersMu sync.RWMutex
	listeners   []worker.Listener

	mu      sync.Mutex
	handler worker.DeliveryFunc
	cancel  context.CancelFunc
	done    chan struct{}
}

// QueueOption customises a Queue.
type QueueOption func(*Queue)

// WithIdleInterval emits an idle event whenever no message arrives for d.
// Zero disables idle events.
func WithIdleInterval(d time.Duration) QueueOption {
	return func(q *Queue) { q.idleAfter = d }
}

// NewQueue creates a consumer for a single topic on the given subscriber.
func NewQueue(topic string, subscriber message.Subscriber, logger logging.ServiceLogger, opts ...QueueOption) (*Queue, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if logger == nil {
		logger = logging.Nop()
	}

	q := &Queue{
		topic:      topic,
		subscriber: subscriber,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// CreateConsumer registers the delivery callback.
func (q *Queue) CreateConsumer(fn worker.DeliveryFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = fn
}

// AddListener subscribes a listener to the queue's lifecycle events.
func (q *Queue) AddListener(l worker.Listener) {
	if l == nil {
		return
	}
	q.listenersMu.Lock()
	defer q.listenersMu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Start subscribes to the topic and delivers messages until the context is
// cancelled or Stop is called. Starting an already running queue is a no-op.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancel != nil {
		return nil
	}
	if q.handler == nil {
		return errspkg.ErrHandlerRequired
	}

	runCtx, cancel := context.WithCancel(ctx)

	messages, err := q.subscriber.Subscribe(runCtx, q.topic)
	if err != nil {
		cancel()
		q.emit(worker.Event{Type: worker.EventError, Err: fmt.Errorf("subscribe %q: %w", q.topic, err)})
		return fmt.Errorf("subscribe %q: %w", q.topic, err)
	}

	q.cancel = cancel
	q.done = make(chan struct{})

	q.logger.Info("consumer started", logging.LogFields{"topic": q.topic})
	go q.run(runCtx, messages, q.done)

	return nil
}

// Stop cancels delivery, closes the subscriber and waits for the delivery
// loop to drain or the context to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	err := q.subscriber.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (q *Queue) run(ctx context.Context, messages <-chan *message.Message, done chan struct{}) {
	defer close(done)
	defer q.emit(worker.Event{Type: worker.EventStopped})

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if q.idleAfter > 0 {
		idleTimer = time.NewTimer(q.idleAfter)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			q.dispatch(ctx, msg)
			if idleTimer != nil {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(q.idleAfter)
			}
		case <-idle:
			q.emit(worker.Event{Type: worker.EventIdle})
			idleTimer.Reset(q.idleAfter)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch runs the callback and always acknowledges: redelivery of a
// message the worker already reported on would double its lifecycle events.
func (q *Queue) dispatch(ctx context.Context, msg *message.Message) {
	q.emit(worker.Event{Type: worker.EventMessageReceived})

	func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("delivery callback panicked: %v", r)
				q.logger.Error("delivery callback panicked", err, logging.LogFields{
					"topic":      q.topic,
					"message_id": msg.UUID,
				})
				q.emit(worker.Event{Type: worker.EventMessageError, Err: err})
			}
		}()
		q.handler(ctx, msg.Payload, metadata.FromWatermill(msg.Metadata))
	}()

	msg.Ack()
	q.emit(worker.Event{Type: worker.EventMessageProcessed})
}

func (q *Queue) emit(e worker.Event) {
	q.listenersMu.RLock()
	listeners := make([]worker.Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnEvent(e)
	}
}
