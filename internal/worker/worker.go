package worker

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/queueworks/routeflow/internal/worker/config"
	errspkg "github.com/queueworks/routeflow/internal/worker/errors"
	"github.com/queueworks/routeflow/internal/worker/logging"
	"github.com/queueworks/routeflow/internal/worker/metadata"
	"github.com/queueworks/routeflow/internal/worker/tracing"
)

// DeliveryFunc is the callback a Consumer drives with raw messages. It has
// no return value: the consumer does not block on an outcome, and the worker
// reports everything through lifecycle events.
type DeliveryFunc func(ctx context.Context, payload []byte, attrs metadata.Attributes)

// Consumer is the delivery collaborator the worker binds to. It owns
// connection, polling, acknowledgement and retry; the worker only supplies
// the callback and forwards the consumer's lifecycle events.
type Consumer interface {
	// CreateConsumer registers the delivery callback. Called once by Init.
	CreateConsumer(fn DeliveryFunc)

	// AddListener subscribes to the consumer's own lifecycle events
	// (message_received, message_processed, message_error, error, idle,
	// stopped).
	AddListener(l Listener)

	// Start begins delivering messages until the context is cancelled or
	// Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the consumer down.
	Stop(ctx context.Context) error
}

// Dependencies holds the collaborators supplied to a Worker.
type Dependencies struct {
	Consumer Consumer
	Router   Router

	// TracerProvider backs the processing spans. Nil yields inert spans; the
	// worker never consults process-global tracer state.
	TracerProvider trace.TracerProvider

	// Listeners are subscribed before the first message is handled.
	Listeners []Listener

	// ErrorClassifier buckets pipeline failures for stats. Nil uses the
	// default classifier.
	ErrorClassifier ErrorClassifier
}

// Worker binds a Consumer to a Router and runs every delivered message
// through the validation → routing → handler → trace pipeline, re-emitting a
// uniform lifecycle event stream. One worker handles one invocation per
// delivery; delivery concurrency is the consumer's choice.
type Worker struct {
	conf       *configpkg.Config
	logger     logging.ServiceLogger
	consumer   Consumer
	router     Router
	tracer     *tracing.Tracer
	classifier ErrorClassifier

	listenersMu sync.RWMutex
	listeners   []Listener

	statsMu sync.RWMutex
	stats   map[string]*TypeStats

	initOnce sync.Once
}

// New constructs a Worker. Register listeners and call Init (or Start, which
// implies it) before the consumer delivers messages. conf may be nil; only
// the tracing knobs are read from it.
func New(conf *configpkg.Config, log logging.ServiceLogger, deps Dependencies) (*Worker, error) {
	if deps.Consumer == nil {
		return nil, errspkg.ErrConsumerRequired
	}
	if deps.Router == nil {
		return nil, errspkg.ErrRouterRequired
	}
	if log == nil {
		log = logging.Nop()
	}
	if conf != nil {
		if err := conf.Validate(); err != nil {
			return nil, err
		}
	}

	var tracerOpts []tracing.Option
	if conf != nil && conf.SpanCeiling > 0 {
		tracerOpts = append(tracerOpts, tracing.WithCeiling(conf.SpanCeiling))
	}

	w := &Worker{
		conf:       conf,
		logger:     log,
		consumer:   deps.Consumer,
		router:     deps.Router,
		tracer:     tracing.New(deps.TracerProvider, tracerOpts...),
		classifier: deps.ErrorClassifier,
		listeners:  append([]Listener(nil), deps.Listeners...),
		stats:      make(map[string]*TypeStats),
	}
	return w, nil
}

// Init wires the worker to its consumer: the delivery callback plus verbatim
// forwarding of the consumer's lifecycle events. Idempotent; returns the
// worker for chaining.
func (w *Worker) Init() *Worker {
	w.initOnce.Do(func() {
		w.consumer.CreateConsumer(w.handleMessage)
		w.consumer.AddListener(ListenerFunc(w.emit))
	})
	return w
}

// Start initialises the worker if needed and starts the consumer.
func (w *Worker) Start(ctx context.Context) error {
	w.Init()
	w.logger.Info("Starting worker", logging.LogFields{
		"registered_types": w.router.RegisteredTypes(),
		"trace_enabled":    w.router.TraceEnabled(),
	})
	return w.consumer.Start(ctx)
}

// Stop shuts the consumer down.
func (w *Worker) Stop(ctx context.Context) error {
	return w.consumer.Stop(ctx)
}

// AddListener subscribes l to the worker's lifecycle event stream.
func (w *Worker) AddListener(l Listener) {
	if l == nil {
		return
	}
	w.listenersMu.Lock()
	w.listeners = append(w.listeners, l)
	w.listenersMu.Unlock()
}

func (w *Worker) emit(e Event) {
	w.listenersMu.RLock()
	listeners := w.listeners
	w.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnEvent(e)
	}
}

// Stats returns a snapshot of per-type processing statistics.
func (w *Worker) Stats() map[string]TypeStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	out := make(map[string]TypeStats, len(w.stats))
	for t, s := range w.stats {
		out[t] = s.Snapshot()
	}
	return out
}
