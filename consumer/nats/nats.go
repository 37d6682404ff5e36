// Package nats provides a core-NATS consumer for routeflow.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// SystemName is the queue-system name this backend registers under.
const SystemName = "nats"

var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	consumer.Register(SystemName, Build)
}

// Build creates a consumer reading the configured topic from NATS.
func Build(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         cfg.GetNATSURL(),
			Unmarshaler: &nats.NATSMarshaler{},
		},
		logging.NewWatermillAdapter(logger),
	)
	if err != nil {
		return nil, err
	}

	return consumer.NewQueue(cfg.GetQueue(), subscriber, logger, consumer.WithIdleInterval(cfg.GetIdleInterval()))
}
