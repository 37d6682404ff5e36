package worker

// EventType enumerates the lifecycle events observable on a Worker.
// EventMessage and EventError originate in the worker's own pipeline; the
// remaining events are forwarded verbatim from the consumer.
type EventType string

const (
	EventMessageReceived  EventType = "message_received"
	EventMessage          EventType = "message"
	EventMessageProcessed EventType = "message_processed"
	EventMessageError     EventType = "message_error"
	EventError            EventType = "error"
	EventIdle             EventType = "idle"
	EventStopped          EventType = "stopped"
)

// Status reports how far a message made it through the pipeline.
type Status string

const (
	// StatusProcessing is emitted after validation and routing succeed,
	// immediately before the handler is invoked.
	StatusProcessing Status = "PROCESSING"

	// StatusProceed is emitted after the handler completes successfully.
	StatusProceed Status = "PROCEED"
)

// Event is a lifecycle notification. MessageType and Status are populated
// for EventMessage; Err is populated for EventError and EventMessageError.
type Event struct {
	Type        EventType
	MessageType string
	Status      Status
	Err         error
}

// Listener observes lifecycle events. Implementations must be safe for
// concurrent use: the worker invokes them from whatever goroutine delivers
// the message.
type Listener interface {
	OnEvent(e Event)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }
