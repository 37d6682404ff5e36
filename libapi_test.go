package routeflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordedEvents) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) find(et EventType, status Status) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == et && e.Status == status {
			return e, true
		}
	}
	return Event{}, false
}

func (r *recordedEvents) waitFor(t *testing.T, et EventType, status Status) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if e, ok := r.find(et, status); ok {
			return e
		}
		select {
		case <-deadline:
			r.mu.Lock()
			defer r.mu.Unlock()
			t.Fatalf("timed out waiting for %s/%s, got %v", et, status, r.events)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWorkerEndToEnd(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	queue, err := NewQueue("greetings", pubSub, NopLogger())
	if err != nil {
		t.Fatalf("unexpected error creating queue: %v", err)
	}

	registry := NewRegistry()
	var handled sync.Map
	err = registry.Register("greet", HandlerDescriptor{
		Handler: func(ctx context.Context, content any, attrs Attributes, span *Span) (any, error) {
			fields, ok := content.(map[string]any)
			if !ok {
				return nil, errors.New("unexpected content shape")
			}
			handled.Store("name", fields["name"])
			return nil, nil
		},
		Validation: Object(Required("name", String())),
	})
	if err != nil {
		t.Fatalf("unexpected error registering handler: %v", err)
	}

	worker, err := NewWorker(&Config{}, NopLogger(), Dependencies{
		Consumer: queue,
		Router:   registry,
	})
	if err != nil {
		t.Fatalf("unexpected error creating worker: %v", err)
	}

	recorder := &recordedEvents{}
	worker.AddListener(recorder)

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error starting worker: %v", err)
	}
	defer worker.Stop(context.Background())

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"type":"greet","content":{"name":"ada"}}`))
	if err := pubSub.Publish("greetings", msg); err != nil {
		t.Fatalf("unexpected error publishing: %v", err)
	}

	recorder.waitFor(t, EventMessage, StatusProcessing)
	e := recorder.waitFor(t, EventMessage, StatusProceed)
	if e.MessageType != "greet" {
		t.Fatalf("expected message type greet, got %q", e.MessageType)
	}

	name, ok := handled.Load("name")
	if !ok || name != "ada" {
		t.Fatalf("expected handler to receive name ada, got %v", name)
	}

	stats := worker.Stats()
	if stats["greet"].MessagesProcessed != 1 {
		t.Fatalf("expected one processed message, got %+v", stats["greet"])
	}
}

func TestWorkerRejectsUnknownType(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	queue, err := NewQueue("greetings", pubSub, NopLogger())
	if err != nil {
		t.Fatalf("unexpected error creating queue: %v", err)
	}

	registry := NewRegistry()
	if err := registry.Register("greet", HandlerDescriptor{
		Handler: func(ctx context.Context, content any, attrs Attributes, span *Span) (any, error) {
			t.Error("handler must not run for unknown types")
			return nil, nil
		},
		Validation: Any(),
	}); err != nil {
		t.Fatalf("unexpected error registering handler: %v", err)
	}

	worker, err := NewWorker(&Config{}, NopLogger(), Dependencies{Consumer: queue, Router: registry})
	if err != nil {
		t.Fatalf("unexpected error creating worker: %v", err)
	}

	recorder := &recordedEvents{}
	worker.AddListener(recorder)

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error starting worker: %v", err)
	}
	defer worker.Stop(context.Background())

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"type":"unknown","content":{}}`))
	if err := pubSub.Publish("greetings", msg); err != nil {
		t.Fatalf("unexpected error publishing: %v", err)
	}

	e := recorder.waitFor(t, EventError, "")
	if e.Err == nil {
		t.Fatal("expected error event to carry an error")
	}
}

func TestWorkerRequiresDependencies(t *testing.T) {
	if _, err := NewWorker(&Config{}, NopLogger(), Dependencies{}); !errors.Is(err, ErrConsumerRequired) {
		t.Fatalf("expected consumer required error, got %v", err)
	}
}

func TestProtoValidatorExport(t *testing.T) {
	v := Proto[*structpb.Struct]()

	if _, err := v.Validate(map[string]any{"hello": "world"}); err != nil {
		t.Fatalf("expected struct payload to validate: %v", err)
	}
}

func TestErrorCategoryConstants(t *testing.T) {
	if ErrorCategoryNone != "none" {
		t.Fatalf("expected ErrorCategoryNone to be 'none', got %q", ErrorCategoryNone)
	}
	if ErrorCategoryEnvelope != "envelope" {
		t.Fatalf("expected ErrorCategoryEnvelope to be 'envelope', got %q", ErrorCategoryEnvelope)
	}
}

func TestAttributesExport(t *testing.T) {
	attrs := NewAttributes(AttributeTraceParent, "00-abc-def-01")
	if attrs.TraceParent() != "00-abc-def-01" {
		t.Fatalf("expected trace parent to round-trip, got %q", attrs.TraceParent())
	}
}
