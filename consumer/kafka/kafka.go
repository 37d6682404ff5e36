// Package kafka provides a Kafka consumer for routeflow.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// SystemName is the queue-system name this backend registers under.
const SystemName = "kafka"

var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	consumer.Register(SystemName, Build)
}

// Build creates a consumer reading the configured topic from Kafka.
func Build(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:       cfg.GetKafkaBrokers(),
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: cfg.GetKafkaConsumerGroup(),
		},
		logging.NewWatermillAdapter(logger),
	)
	if err != nil {
		return nil, err
	}

	return consumer.NewQueue(cfg.GetQueue(), subscriber, logger, consumer.WithIdleInterval(cfg.GetIdleInterval()))
}
