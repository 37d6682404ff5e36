// Package rabbitmq provides a RabbitMQ (AMQP) consumer for routeflow.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// SystemName is the queue-system name this backend registers under.
const SystemName = "rabbitmq"

// queueSuffix distinguishes routeflow queues from other consumers of the
// same exchange.
const queueSuffix = "-routeflow"

var (
	ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
)

func init() {
	consumer.Register(SystemName, Build)
}

// Build creates a consumer reading the configured topic from RabbitMQ using
// a durable pub/sub topology.
func Build(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	wmLogger := logging.NewWatermillAdapter(logger)

	amqpConfig := amqp.NewDurablePubSubConfig(
		cfg.GetRabbitMQURL(),
		amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix),
	)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   cfg.GetRabbitMQURL(),
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, wmLogger)
	if err != nil {
		return nil, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, wmLogger, conn)
	if err != nil {
		return nil, err
	}

	return consumer.NewQueue(cfg.GetQueue(), subscriber, logger, consumer.WithIdleInterval(cfg.GetIdleInterval()))
}
