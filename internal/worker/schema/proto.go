package schema

import (
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/queueworks/routeflow/internal/worker/errors"
	"github.com/queueworks/routeflow/internal/worker/jsoncodec"
)

// Proto returns a Validator that coerces decoded JSON content into a
// protobuf message of type T. The validated value handed to the handler is
// the typed proto message, not the raw map.
func Proto[T proto.Message]() Validator {
	return ValidatorFunc(func(value any) (any, error) {
		prototype, err := newProtoPrototype[T]()
		if err != nil {
			return nil, err
		}

		data, err := jsoncodec.Marshal(value)
		if err != nil {
			return fail(value, "content is not JSON-encodable: %v", err)
		}
		if err := protojson.Unmarshal(data, prototype); err != nil {
			return fail(value, "content does not match %T: %v", prototype, err)
		}
		return prototype, nil
	})
}

func newProtoPrototype[T proto.Message]() (T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return zero, errspkg.ErrMessageTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrMessageTypeRequired
	}

	inst := reflect.New(typ.Elem()).Interface()
	typed, ok := inst.(T)
	if !ok {
		return zero, errspkg.ErrMessageTypeRequired
	}
	return typed, nil
}
