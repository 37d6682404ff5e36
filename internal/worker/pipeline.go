package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/queueworks/routeflow/internal/worker/jsoncodec"
	"github.com/queueworks/routeflow/internal/worker/logging"
	"github.com/queueworks/routeflow/internal/worker/metadata"
	"github.com/queueworks/routeflow/internal/worker/schema"
	"github.com/queueworks/routeflow/internal/worker/tracing"
)

const processSpanName = "routeflow.process_message"

// statsUnknownType buckets messages whose type never validated.
const statsUnknownType = "unknown"

type stage int

const (
	stageEnvelope stage = iota
	stageRouting
	stageContent
	stageHandler
)

// pipelineError carries where in the pipeline an error was raised and
// whether the validation gate already reported it through the event stream.
// The marker never leaves the worker: the completion path strips it before
// emitting.
type pipelineError struct {
	stage  stage
	traced bool
	err    error
}

func (e *pipelineError) Error() string { return e.err.Error() }
func (e *pipelineError) Unwrap() error { return e.err }

func unwrapPipeline(err error) error {
	var pe *pipelineError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

// handleMessage runs one message to completion. It never returns an error:
// every outcome is observable only through the lifecycle event stream, and a
// failing message never propagates past the worker boundary.
func (w *Worker) handleMessage(ctx context.Context, raw []byte, attrs metadata.Attributes) {
	var span *tracing.Span
	if w.router.TraceEnabled() {
		ctx, span = w.tracer.StartConsumerSpan(ctx, processSpanName, attrs.TraceParent())
		span.SetTag("messaging.attributes", jsoncodec.Stringify(attrs))
	}

	start := time.Now()
	msgType, err := w.process(ctx, raw, attrs, span)
	w.recordStats(msgType, time.Since(start), err)

	if err != nil {
		emitted := unwrapPipeline(err)
		span.RecordError(emitted)
		span.End()
		w.logger.Error("Message handling failed", emitted, logging.LogFields{
			"message_type": msgType,
		})
		w.emit(Event{Type: EventError, Err: emitted})
		return
	}

	span.End()
	w.emit(Event{Type: EventMessage, MessageType: msgType, Status: StatusProceed})
}

// process runs the five pipeline steps in order and returns the message type
// (when known) alongside the first failure.
func (w *Worker) process(ctx context.Context, raw []byte, attrs metadata.Attributes, span *tracing.Span) (string, error) {
	value, _ := decodePayload(raw)

	validated, err := w.validate(stageEnvelope, "envelope", envelopeValidator(w.router.RegisteredTypes()), value)
	if err != nil {
		return "", err
	}
	env := asEnvelope(validated)

	// Absence is normally impossible: the envelope validator only accepts
	// registered types. The registered set may still change between the two
	// reads, so a miss here is a routing error.
	desc, ok := w.router.Get(env.Type)
	if !ok {
		return env.Type, &pipelineError{
			stage: stageRouting,
			err:   fmt.Errorf("no handler registered for message type %q", env.Type),
		}
	}

	content, err := w.validate(stageContent, env.Type, desc.Validation, env.Content)
	if err != nil {
		return env.Type, err
	}

	w.emit(Event{Type: EventMessage, MessageType: env.Type, Status: StatusProcessing})

	result, err := invokeHandler(ctx, desc.Handler, content, attrs, span)
	if err != nil {
		return env.Type, &pipelineError{stage: stageHandler, err: err}
	}

	if result != nil {
		span.AddEvent("handler.result", jsoncodec.Stringify(result))
	}
	return env.Type, nil
}

// validate is the validation gate: it runs value through v and reports
// failures on the event stream before returning them, so a validation error
// surfaces once at the point of detection and once more from the completion
// path.
func (w *Worker) validate(st stage, label string, v schema.Validator, value any) (any, error) {
	out, err := v.Validate(value)
	if err != nil {
		w.emit(Event{Type: EventError, Err: fmt.Errorf("invalid %s: %w", label, err)})
		return nil, &pipelineError{stage: st, traced: true, err: err}
	}
	return out, nil
}

// invokeHandler converts handler panics into errors so one poisonous message
// cannot crash the process.
func invokeHandler(ctx context.Context, h Handler, content any, attrs metadata.Attributes, span *tracing.Span) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, content, attrs, span)
}

func (w *Worker) recordStats(msgType string, duration time.Duration, err error) {
	if msgType == "" {
		msgType = statsUnknownType
	}

	w.statsMu.Lock()
	stats, ok := w.stats[msgType]
	if !ok {
		stats = newTypeStats()
		w.stats[msgType] = stats
	}
	w.statsMu.Unlock()

	stats.onMessageFinish(duration, err, w.classifier)
}
