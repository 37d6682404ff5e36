// Package routeflow dispatches queue messages to typed handlers. A Worker
// binds a Consumer (the queue side: connection, polling, acknowledgement) to
// a Router (the dispatch side: one handler plus one content validator per
// message type) and runs every delivered payload through a fixed pipeline:
// decode, envelope validation, type routing, content validation, handler
// invocation. Everything the pipeline observes is re-emitted as a uniform
// lifecycle event stream, so logging, metrics, and alerting attach as
// listeners instead of living inside handlers.
//
// Messages are JSON envelopes with exactly two fields: "type" selects the
// handler, "content" carries the payload the handler's validator must
// accept. Payloads that do not parse as JSON objects travel through the same
// envelope validation and are rejected with the same error events, so a
// malformed message is observable rather than fatal.
//
// # Consumers
//
// The consumer packages provide 6 queue backends out of the box:
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: Core NATS messaging
//   - nats-jetstream: Durable pull consumers on JetStream
//
// Each backend registers itself in consumer.DefaultRegistry under its
// QueueSystem name; BuildConsumer picks one from Config. Any type satisfying
// the Consumer interface plugs in the same way.
//
// # Tracing
//
// A registry built with WithTracing opens an OpenTelemetry consumer span per
// message, linked to the upstream trace through the "traceId" message
// attribute (W3C traceparent). Spans end when processing ends; a span left
// open past the ceiling (2 hours by default, see DefaultSpanCeiling) is
// tagged as timed out and closed by the worker itself. The TracerProvider is
// injected through Dependencies; no process-global tracer state is read.
//
// # Lifecycle events
//
// Listeners receive message_received, message (with PROCESSING or PROCEED
// status), message_processed, message_error, error, idle, and stopped
// events. NewLoggingListener and NewMetricsListener cover the common cases:
// structured logs per event and Prometheus counters per type and status.
package routeflow
