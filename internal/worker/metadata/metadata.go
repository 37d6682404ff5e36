package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// Well-known attribute keys. These keys are reserved and should not be used
// for custom attributes.
const (
	// KeyTraceParent carries the serialized parent trace identifier
	// (W3C traceparent compatible) used to parent the processing span.
	KeyTraceParent = "traceId"

	// KeyCorrelationID tracks related messages across services.
	KeyCorrelationID = "correlation_id"

	// KeyMessageID carries the transport-level message identifier.
	KeyMessageID = "message_id"
)

// Attributes is the opaque key/value side-channel delivered alongside a raw
// message. The worker reads it but never validates or mutates it.
type Attributes map[string]string

// Get returns the value for key, or the empty string when absent.
func (a Attributes) Get(key string) string {
	if a == nil {
		return ""
	}
	return a[key]
}

func (a Attributes) cloneWithExtra(extra int) Attributes {
	size := len(a) + extra
	if size <= 0 {
		return Attributes{}
	}

	cloned := make(Attributes, size)
	for k, v := range a {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the attribute map.
func (a Attributes) Clone() Attributes {
	return a.cloneWithExtra(0)
}

// With returns a cloned attribute map containing the provided key/value pair.
func (a Attributes) With(key, value string) Attributes {
	cloned := a.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// TraceParent returns the serialized parent trace identifier, if present.
func (a Attributes) TraceParent() string {
	return a.Get(KeyTraceParent)
}

// New constructs an Attributes map from alternating key/value pairs.
func New(pairs ...string) Attributes {
	attrs := make(Attributes, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		attrs[pairs[i]] = pairs[i+1]
	}
	return attrs
}

// FromWatermill converts watermill message metadata into Attributes.
func FromWatermill(md message.Metadata) Attributes {
	if len(md) == 0 {
		return Attributes{}
	}
	attrs := make(Attributes, len(md))
	for k, v := range md {
		attrs[k] = v
	}
	return attrs
}

// ToWatermill converts Attributes into watermill message metadata.
func ToWatermill(attrs Attributes) message.Metadata {
	md := make(message.Metadata, len(attrs))
	for k, v := range attrs {
		md[k] = v
	}
	return md
}
