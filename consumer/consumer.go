// Package consumer provides queue consumers that feed a routeflow worker.
//
// A consumer owns the connection to a message broker, delivers raw payloads
// to the worker's callback, acknowledges messages after the callback returns
// and reports its own lifecycle (received, processed, idle, stopped) as
// events. Backend packages (channel, kafka, rabbitmq, nats, jetstream, aws)
// register themselves under a system name; Build picks one from config.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// Config is the subset of configuration a consumer builder needs. The
// concrete routeflow config satisfies it; tests can supply their own.
type Config interface {
	GetQueueSystem() string
	GetQueue() string
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string
	GetRabbitMQURL() string
	GetNATSURL() string
	GetNATSStreamName() string
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
	GetIdleInterval() time.Duration
}

// Builder creates a consumer for one backend.
type Builder func(ctx context.Context, cfg Config, logger logging.ServiceLogger) (worker.Consumer, error)

// Registry maintains a mapping of queue-system names to their builders.
// Backend packages register themselves using Register.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// DefaultRegistry is the global consumer registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new consumer registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a consumer builder to the registry. The name should match
// the QueueSystem config value (e.g. "kafka", "rabbitmq").
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// Build creates a consumer using the registered builder for the config's
// QueueSystem.
func (r *Registry) Build(ctx context.Context, cfg Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	name := cfg.GetQueueSystem()

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown queue system: %q (registered: %v)", name, r.Names())
	}

	return builder(ctx, cfg, logger)
}

// Names returns the list of registered queue-system names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

// Has returns true if a consumer is registered with the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a consumer builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// Build creates a consumer using the default registry.
func Build(ctx context.Context, cfg Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
