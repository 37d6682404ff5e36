// Package tracing wraps OpenTelemetry spans with the lifecycle the worker
// needs: consumer-kind spans optionally parented from a serialized trace
// identifier, force-finished by a fixed ceiling timer, with an idempotent
// End that is safe under the timeout/normal-completion race. All span
// operations are no-ops on a nil span so a disabled tracer costs nothing.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultCeiling bounds how long a span may stay open before it is tagged
// timed-out and force-finished.
const DefaultCeiling = 2 * time.Hour

const tracerName = "routeflow"

// AttributeTimedOut marks spans finished by the ceiling timer.
const AttributeTimedOut = "routeflow.timed_out"

// Tracer creates processing spans for the worker.
type Tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	ceiling    time.Duration
}

// Option customises a Tracer.
type Option func(*Tracer)

// WithCeiling overrides the span ceiling. Non-positive values keep the
// default.
func WithCeiling(d time.Duration) Option {
	return func(t *Tracer) {
		if d > 0 {
			t.ceiling = d
		}
	}
}

// New builds a Tracer on the provided tracer provider. A nil provider yields
// a tracer whose spans are inert, so callers never consult process-global
// state.
func New(provider trace.TracerProvider, opts ...Option) *Tracer {
	if provider == nil {
		provider = noop.NewTracerProvider()
	}
	t := &Tracer{
		tracer:     provider.Tracer(tracerName),
		propagator: propagation.TraceContext{},
		ceiling:    DefaultCeiling,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartConsumerSpan starts a messaging-consumer span, parented to the trace
// context serialized in parent (W3C traceparent) when non-empty. The span
// self-expires after the tracer's ceiling.
func (t *Tracer) StartConsumerSpan(ctx context.Context, name, parent string) (context.Context, *Span) {
	if parent != "" {
		carrier := propagation.MapCarrier{"traceparent": parent}
		ctx = t.propagator.Extract(ctx, carrier)
	}

	ctx, otelSpan := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindConsumer))

	span := &Span{span: otelSpan}
	span.timer = time.AfterFunc(t.ceiling, span.expire)
	return ctx, span
}

type spanState int

const (
	spanLive spanState = iota
	spanFinished
	spanExpired
)

// Span is a tracing handle owned by exactly one in-flight message handling
// invocation. The zero span pointer (nil) is valid: every method no-ops.
type Span struct {
	mu    sync.Mutex
	span  trace.Span
	timer *time.Timer
	state spanState
}

// End finishes the span and cancels the pending ceiling timer. It tolerates
// nil and already-finished spans: the timeout path and the normal completion
// path may both call it.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != spanLive {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.span.End()
	s.state = spanFinished
}

// expire is the ceiling-timer callback: it tags the span as timed out and
// finishes it. Handler execution is unaffected.
func (s *Span) expire() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != spanLive {
		return
	}
	s.span.SetAttributes(attribute.Bool(AttributeTimedOut, true))
	s.span.End()
	s.state = spanExpired
}

// TimedOut reports whether the ceiling timer finished the span.
func (s *Span) TimedOut() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == spanExpired
}

// SetTag attaches a string attribute to a live span.
func (s *Span) SetTag(key, value string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != spanLive {
		return
	}
	s.span.SetAttributes(attribute.String(key, value))
}

// AddEvent records a named event with a value payload on a live span.
func (s *Span) AddEvent(name, value string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != spanLive {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(attribute.String("value", value)))
}

// RecordError logs err onto a live span and marks the span status as error.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != spanLive {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
