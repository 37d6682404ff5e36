package worker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/queueworks/routeflow/internal/worker/logging"
)

// LoggingListener logs lifecycle events through a ServiceLogger.
type LoggingListener struct {
	Logger logging.ServiceLogger
}

// NewLoggingListener wraps log in a Listener.
func NewLoggingListener(log logging.ServiceLogger) *LoggingListener {
	return &LoggingListener{Logger: log}
}

func (l *LoggingListener) OnEvent(e Event) {
	if l.Logger == nil {
		return
	}
	fields := logging.LogFields{"event": string(e.Type)}
	if e.MessageType != "" {
		fields["message_type"] = e.MessageType
	}
	if e.Status != "" {
		fields["status"] = string(e.Status)
	}

	switch e.Type {
	case EventError, EventMessageError:
		l.Logger.Error("Worker event", e.Err, fields)
	case EventMessage:
		l.Logger.Info("Worker event", fields)
	default:
		l.Logger.Debug("Worker event", fields)
	}
}

// MetricsListener records lifecycle events as Prometheus counters.
type MetricsListener struct {
	messages *prometheus.CounterVec
	errors   prometheus.Counter
}

// NewMetricsListener builds a MetricsListener and registers its collectors
// on reg.
func NewMetricsListener(reg prometheus.Registerer, namespace string) (*MetricsListener, error) {
	if namespace == "" {
		namespace = "routeflow"
	}

	m := &MetricsListener{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages observed by the worker pipeline, by type and status.",
		}, []string{"type", "status"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error lifecycle events emitted by the worker.",
		}),
	}

	if reg != nil {
		if err := reg.Register(m.messages); err != nil {
			return nil, err
		}
		if err := reg.Register(m.errors); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsListener) OnEvent(e Event) {
	switch e.Type {
	case EventMessage:
		m.messages.WithLabelValues(e.MessageType, string(e.Status)).Inc()
	case EventError:
		m.errors.Inc()
	}
}
