package worker

import (
	"github.com/queueworks/routeflow/internal/worker/jsoncodec"
	"github.com/queueworks/routeflow/internal/worker/schema"
)

const (
	envelopeFieldType    = "type"
	envelopeFieldContent = "content"
)

// Envelope is the validated wrapper around a raw message: a registered type
// identifier plus arbitrary content for that type's validator.
type Envelope struct {
	Type    string
	Content any
}

// decodePayload attempts to decode raw as JSON. Payloads that do not parse
// are passed through as the literal string: parse failure is not an error,
// the envelope validator rejects non-object shapes downstream.
func decodePayload(raw []byte) (value any, decoded bool) {
	var v any
	if err := jsoncodec.Unmarshal(raw, &v); err != nil {
		return string(raw), false
	}
	return v, true
}

// envelopeValidator builds the envelope schema for the router's current
// registered-type set: an object with exactly a registered type identifier
// and a content value, nothing else. It is rebuilt per message because the
// set may grow after the worker is constructed.
func envelopeValidator(registeredTypes []string) schema.Validator {
	return schema.Object(
		schema.Required(envelopeFieldType, schema.Enum(registeredTypes...)),
		schema.Required(envelopeFieldContent, schema.Any()),
	)
}

// asEnvelope converts a value validated by envelopeValidator into an
// Envelope.
func asEnvelope(validated any) Envelope {
	obj := validated.(map[string]any)
	return Envelope{
		Type:    obj[envelopeFieldType].(string),
		Content: obj[envelopeFieldContent],
	}
}
