// Package jetstream provides a NATS JetStream consumer for routeflow. It
// uses durable pull consumers so redelivery and ack-wait are handled by the
// stream rather than in process.
package jetstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/ids"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// SystemName is the queue-system name this backend registers under.
const SystemName = "nats-jetstream"

const (
	// DefaultStreamName is used when the config names no stream.
	DefaultStreamName = "ROUTEFLOW"

	// DefaultMaxDeliver is the default max delivery attempts.
	DefaultMaxDeliver = 3

	// DefaultAckWait is the default ack wait timeout.
	DefaultAckWait = 30 * time.Second

	fetchBatch   = 10
	fetchMaxWait = time.Second
)

var ConnectFactory = func(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

func init() {
	consumer.Register(SystemName, Build)
}

// Build creates a consumer reading the configured topic from a JetStream
// stream.
func Build(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	subscriber, err := NewSubscriber(Config{
		URL:        cfg.GetNATSURL(),
		StreamName: cfg.GetNATSStreamName(),
	}, logger)
	if err != nil {
		return nil, err
	}

	return consumer.NewQueue(cfg.GetQueue(), subscriber, logger, consumer.WithIdleInterval(cfg.GetIdleInterval()))
}

// Config holds JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream to consume from. Empty defaults
	// to DefaultStreamName.
	StreamName string

	// MaxDeliver is the maximum number of delivery attempts.
	MaxDeliver int

	// AckWait is the duration to wait for acknowledgment.
	AckWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	return c
}

// Subscriber implements watermill's message.Subscriber on JetStream pull
// consumers.
type Subscriber struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger logging.ServiceLogger

	subscriptions map[string]*nats.Subscription
	subMu         sync.Mutex

	closed     bool
	closedMu   sync.RWMutex
	closedChan chan struct{}
}

// NewSubscriber connects to NATS and ensures the stream exists.
func NewSubscriber(cfg Config, logger logging.ServiceLogger) (*Subscriber, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}

	nc, err := ConnectFactory(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &Subscriber{
		nc:            nc,
		js:            js,
		config:        cfg,
		logger:        logger,
		subscriptions: make(map[string]*nats.Subscription),
		closedChan:    make(chan struct{}),
	}

	if err := s.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return s, nil
}

func (s *Subscriber) ensureStream() error {
	streamCfg := &nats.StreamConfig{
		Name:      s.config.StreamName,
		Subjects:  []string{s.config.StreamName + ".>"},
		MaxAge:    24 * time.Hour * 7,
		Retention: nats.LimitsPolicy,
	}

	_, err := s.js.AddStream(streamCfg)
	if err != nil {
		_, err = s.js.UpdateStream(streamCfg)
		if err != nil {
			s.logger.Info("JetStream stream exists", logging.LogFields{
				"stream": s.config.StreamName,
			})
		}
	}

	return nil
}

// Subscribe creates a durable pull consumer for the topic and returns a
// channel of messages.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.closedMu.RLock()
	if s.closed {
		s.closedMu.RUnlock()
		return nil, fmt.Errorf("subscriber is closed")
	}
	s.closedMu.RUnlock()

	subject := s.topicToSubject(topic)
	consumerName := s.topicToConsumer(topic)
	output := make(chan *message.Message)

	consumerCfg := &nats.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    s.config.MaxDeliver,
		AckWait:       s.config.AckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}

	_, err := s.js.AddConsumer(s.config.StreamName, consumerCfg)
	if err != nil {
		_, err = s.js.UpdateConsumer(s.config.StreamName, consumerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := s.js.PullSubscribe(subject, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	s.subMu.Lock()
	s.subscriptions[topic] = sub
	s.subMu.Unlock()

	go s.fetchMessages(ctx, sub, output, topic)

	return output, nil
}

func (s *Subscriber) fetchMessages(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer close(output)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closedChan:
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			s.logger.Error("Failed to fetch messages", err, logging.LogFields{
				"topic": topic,
			})
			continue
		}

		for _, natsMsg := range msgs {
			wmMsg := natsToWatermill(natsMsg)

			select {
			case output <- wmMsg:
				select {
				case <-wmMsg.Acked():
					if err := natsMsg.Ack(); err != nil {
						s.logger.Error("Failed to ack", err, nil)
					}
				case <-wmMsg.Nacked():
					if err := natsMsg.Nak(); err != nil {
						s.logger.Error("Failed to nak", err, nil)
					}
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func natsToWatermill(natsMsg *nats.Msg) *message.Message {
	msgID := natsMsg.Header.Get("ce_id")
	if msgID == "" {
		msgID = ids.NewMessageID()
	}

	wmMsg := message.NewMessage(msgID, natsMsg.Data)

	for k, v := range natsMsg.Header {
		if len(v) > 0 {
			wmMsg.Metadata.Set(k, v[0])
		}
	}

	return wmMsg
}

func (s *Subscriber) topicToSubject(topic string) string {
	return s.config.StreamName + "." + topic
}

func (s *Subscriber) topicToConsumer(topic string) string {
	return "consumer_" + topic
}

// Close unsubscribes all pull consumers and closes the connection.
func (s *Subscriber) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closedChan)
	s.closedMu.Unlock()

	s.subMu.Lock()
	for _, sub := range s.subscriptions {
		sub.Unsubscribe()
	}
	s.subscriptions = make(map[string]*nats.Subscription)
	s.subMu.Unlock()

	s.nc.Close()

	return nil
}
