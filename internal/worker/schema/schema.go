// Package schema holds the content-validation contract the worker consumes
// and a small set of default validator implementations. Handler descriptors
// carry a Validator for their content; the worker builds one more for the
// envelope itself from the router's registered types.
package schema

import (
	"fmt"
	"sort"

	"github.com/queueworks/routeflow/internal/worker/jsoncodec"
)

// ValidationError describes why a value failed validation, carrying the
// offending input alongside the human-readable reason.
type ValidationError struct {
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (got %s)", e.Reason, jsoncodec.Stringify(e.Value))
}

func fail(value any, format string, args ...any) (any, error) {
	return nil, &ValidationError{Reason: fmt.Sprintf(format, args...), Value: value}
}

// Validator checks a decoded value and returns the validated (possibly
// coerced) value or a *ValidationError.
type Validator interface {
	Validate(value any) (any, error)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(value any) (any, error)

func (f ValidatorFunc) Validate(value any) (any, error) { return f(value) }

// Any accepts every value unchanged.
func Any() Validator {
	return ValidatorFunc(func(value any) (any, error) {
		return value, nil
	})
}

// String accepts string values.
func String() Validator {
	return ValidatorFunc(func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return fail(value, "expected a string")
		}
		return s, nil
	})
}

// Number accepts numeric values, coercing integers to float64 so handlers
// see one numeric shape regardless of how the payload was decoded.
func Number() Validator {
	return ValidatorFunc(func(value any) (any, error) {
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return fail(value, "expected a number")
		}
	})
}

// Bool accepts boolean values.
func Bool() Validator {
	return ValidatorFunc(func(value any) (any, error) {
		b, ok := value.(bool)
		if !ok {
			return fail(value, "expected a boolean")
		}
		return b, nil
	})
}

// Enum accepts a string drawn from the allowed set.
func Enum(allowed ...string) Validator {
	members := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		members[v] = struct{}{}
	}
	return ValidatorFunc(func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return fail(value, "expected a string")
		}
		if _, ok := members[s]; !ok {
			sorted := append([]string(nil), allowed...)
			sort.Strings(sorted)
			return fail(value, "expected one of %v", sorted)
		}
		return s, nil
	})
}

// Field pairs a named object member with its validator.
type Field struct {
	Name      string
	Validator Validator
	Optional  bool
}

// Required declares a mandatory object field.
func Required(name string, v Validator) Field {
	return Field{Name: name, Validator: v}
}

// Optional declares an object field that may be absent.
func Optional(name string, v Validator) Field {
	return Field{Name: name, Validator: v, Optional: true}
}

// Object accepts a map containing exactly the declared fields: required
// fields must be present, every present field must validate, and unknown
// fields are rejected. The validated map carries the coerced field values.
func Object(fields ...Field) Validator {
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return ValidatorFunc(func(value any) (any, error) {
		obj, ok := value.(map[string]any)
		if !ok {
			return fail(value, "expected an object")
		}

		for key := range obj {
			if _, ok := byName[key]; !ok {
				return fail(value, "unknown field %q", key)
			}
		}

		validated := make(map[string]any, len(obj))
		for _, f := range fields {
			raw, present := obj[f.Name]
			if !present {
				if f.Optional {
					continue
				}
				return fail(value, "missing required field %q", f.Name)
			}
			out, err := f.Validator.Validate(raw)
			if err != nil {
				return nil, &ValidationError{
					Reason: fmt.Sprintf("field %q: %s", f.Name, reasonOf(err)),
					Value:  value,
				}
			}
			validated[f.Name] = out
		}
		return validated, nil
	})
}

func reasonOf(err error) string {
	if ve, ok := err.(*ValidationError); ok {
		return ve.Reason
	}
	return err.Error()
}
