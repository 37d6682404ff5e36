package routeflow

import (
	"google.golang.org/protobuf/proto"

	consumerpkg "github.com/queueworks/routeflow/consumer"
	workerpkg "github.com/queueworks/routeflow/internal/worker"
	configpkg "github.com/queueworks/routeflow/internal/worker/config"
	errspkg "github.com/queueworks/routeflow/internal/worker/errors"
	idspkg "github.com/queueworks/routeflow/internal/worker/ids"
	loggingpkg "github.com/queueworks/routeflow/internal/worker/logging"
	metadatapkg "github.com/queueworks/routeflow/internal/worker/metadata"
	schemapkg "github.com/queueworks/routeflow/internal/worker/schema"
	tracingpkg "github.com/queueworks/routeflow/internal/worker/tracing"
)

type (
	Config = configpkg.Config

	Worker       = workerpkg.Worker
	Dependencies = workerpkg.Dependencies
	DeliveryFunc = workerpkg.DeliveryFunc
	Consumer     = workerpkg.Consumer

	Router            = workerpkg.Router
	Registry          = workerpkg.Registry
	RegistryOption    = workerpkg.RegistryOption
	Handler           = workerpkg.Handler
	HandlerDescriptor = workerpkg.HandlerDescriptor

	Event        = workerpkg.Event
	EventType    = workerpkg.EventType
	Status       = workerpkg.Status
	Listener     = workerpkg.Listener
	ListenerFunc = workerpkg.ListenerFunc

	LoggingListener = workerpkg.LoggingListener
	MetricsListener = workerpkg.MetricsListener

	// Per-type processing statistics
	TypeStats         = workerpkg.TypeStats
	LatencyMetrics    = workerpkg.LatencyMetrics
	ThroughputMetrics = workerpkg.ThroughputMetrics
	ErrorBreakdown    = workerpkg.ErrorBreakdown
	ErrorCategory     = workerpkg.ErrorCategory
	ErrorClassifier   = workerpkg.ErrorClassifier

	Attributes = metadatapkg.Attributes

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Content validation
	Validator       = schemapkg.Validator
	ValidatorFunc   = schemapkg.ValidatorFunc
	ValidationError = schemapkg.ValidationError
	SchemaField     = schemapkg.Field

	// Processing spans
	Tracer       = tracingpkg.Tracer
	Span         = tracingpkg.Span
	TracerOption = tracingpkg.Option

	// Consumer wiring (modular backend packages register themselves)
	ConsumerConfig   = consumerpkg.Config
	ConsumerBuilder  = consumerpkg.Builder
	ConsumerRegistry = consumerpkg.Registry
	Queue            = consumerpkg.Queue
	QueueOption      = consumerpkg.QueueOption
)

const (
	EventMessageReceived  = workerpkg.EventMessageReceived
	EventMessage          = workerpkg.EventMessage
	EventMessageProcessed = workerpkg.EventMessageProcessed
	EventMessageError     = workerpkg.EventMessageError
	EventError            = workerpkg.EventError
	EventIdle             = workerpkg.EventIdle
	EventStopped          = workerpkg.EventStopped

	StatusProcessing = workerpkg.StatusProcessing
	StatusProceed    = workerpkg.StatusProceed

	ErrorCategoryNone     = workerpkg.ErrorCategoryNone
	ErrorCategoryEnvelope = workerpkg.ErrorCategoryEnvelope
	ErrorCategoryRouting  = workerpkg.ErrorCategoryRouting
	ErrorCategoryContent  = workerpkg.ErrorCategoryContent
	ErrorCategoryHandler  = workerpkg.ErrorCategoryHandler
	ErrorCategoryOther    = workerpkg.ErrorCategoryOther

	// Message attribute keys
	AttributeTraceParent   = metadatapkg.KeyTraceParent
	AttributeCorrelationID = metadatapkg.KeyCorrelationID
	AttributeMessageID     = metadatapkg.KeyMessageID

	// DefaultSpanCeiling bounds how long a processing span may stay open.
	DefaultSpanCeiling = tracingpkg.DefaultCeiling
)

var (
	NewWorker      = workerpkg.New
	NewRegistry    = workerpkg.NewRegistry
	WithTracing    = workerpkg.WithTracing
	ValidateConfig = configpkg.ValidateConfig

	// Lifecycle listeners
	NewLoggingListener = workerpkg.NewLoggingListener
	NewMetricsListener = workerpkg.NewMetricsListener

	// Logging
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.Nop

	// Content validators
	Any      = schemapkg.Any
	String   = schemapkg.String
	Number   = schemapkg.Number
	Bool     = schemapkg.Bool
	Enum     = schemapkg.Enum
	Object   = schemapkg.Object
	Required = schemapkg.Required
	Optional = schemapkg.Optional

	// Tracing
	NewTracer       = tracingpkg.New
	WithSpanCeiling = tracingpkg.WithCeiling

	// Consumer wiring
	NewConsumerRegistry     = consumerpkg.NewRegistry
	RegisterConsumer        = consumerpkg.Register
	BuildConsumer           = consumerpkg.Build
	NewQueue                = consumerpkg.NewQueue
	WithQueueIdleInterval   = consumerpkg.WithIdleInterval
	DefaultConsumerRegistry = consumerpkg.DefaultRegistry

	NewAttributes = metadatapkg.New
	NewMessageID  = idspkg.NewMessageID
)

// Validation errors surfaced by constructors.
var (
	ErrConsumerRequired    = errspkg.ErrConsumerRequired
	ErrRouterRequired      = errspkg.ErrRouterRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrMessageTypeRequired = errspkg.ErrMessageTypeRequired
	ErrValidatorRequired   = errspkg.ErrValidatorRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrSubscriberRequired  = errspkg.ErrSubscriberRequired
)

// Proto returns a content validator that accepts any value whose JSON form
// unmarshals strictly into the protobuf message type T.
func Proto[T proto.Message]() Validator {
	return schemapkg.Proto[T]()
}
