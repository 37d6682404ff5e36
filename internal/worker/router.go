package worker

import (
	"context"
	"sync"

	errspkg "github.com/queueworks/routeflow/internal/worker/errors"
	"github.com/queueworks/routeflow/internal/worker/metadata"
	"github.com/queueworks/routeflow/internal/worker/schema"
	"github.com/queueworks/routeflow/internal/worker/tracing"
)

// Handler processes validated message content. It receives the live
// processing span (nil when tracing is disabled) and may attach tags and
// events to it. Handlers may block; the worker imposes no deadline on them.
type Handler func(ctx context.Context, content any, attrs metadata.Attributes, span *tracing.Span) (any, error)

// HandlerDescriptor pairs a handler with the validator its content must
// satisfy before the handler is invoked.
type HandlerDescriptor struct {
	Handler    Handler
	Validation schema.Validator
}

// Router is the registry the worker routes against. Implementations must be
// safe for concurrent use; the registered-type set may change between
// messages.
type Router interface {
	// RegisteredTypes returns the currently registered message type
	// identifiers.
	RegisteredTypes() []string

	// Get looks up the descriptor for a message type.
	Get(messageType string) (HandlerDescriptor, bool)

	// TraceEnabled gates span creation for messages routed through this
	// router.
	TraceEnabled() bool
}

// Registry is the default Router implementation.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]HandlerDescriptor
	trace       bool
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithTracing enables span creation for messages routed through the
// registry.
func WithTracing() RegistryOption {
	return func(r *Registry) {
		r.trace = true
	}
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{descriptors: make(map[string]HandlerDescriptor)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a message type to its descriptor. Re-registering a type
// replaces the previous descriptor.
func (r *Registry) Register(messageType string, desc HandlerDescriptor) error {
	if messageType == "" {
		return errspkg.ErrMessageTypeRequired
	}
	if desc.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if desc.Validation == nil {
		return errspkg.ErrValidatorRequired
	}

	r.mu.Lock()
	r.descriptors[messageType] = desc
	r.mu.Unlock()
	return nil
}

// RegisteredTypes returns the registered message type identifiers.
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.descriptors))
	for t := range r.descriptors {
		types = append(types, t)
	}
	return types
}

// Get looks up the descriptor for a message type.
func (r *Registry) Get(messageType string) (HandlerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descriptors[messageType]
	return desc, ok
}

// TraceEnabled reports whether spans are created for this registry's
// messages.
func (r *Registry) TraceEnabled() bool {
	return r.trace
}
