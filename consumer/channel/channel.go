// Package channel provides an in-process consumer backed by watermill's
// gochannel pub/sub. It is meant for tests and examples.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// SystemName is the queue-system name this backend registers under.
const SystemName = "channel"

var GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	consumer.Register(SystemName, Build)
}

// Build creates an in-process consumer. The paired publisher is only
// reachable through NewPubSub, so config-driven wiring is consume-only.
func Build(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	_, sub := GoChannelFactory(gochannel.Config{}, logging.NewWatermillAdapter(logger))
	return consumer.NewQueue(cfg.GetQueue(), sub, logger, consumer.WithIdleInterval(cfg.GetIdleInterval()))
}

// NewPubSub returns a gochannel pub/sub plus a consumer reading topic from
// it. Publish to the returned publisher to feed the consumer.
func NewPubSub(topic string, logger logging.ServiceLogger, opts ...consumer.QueueOption) (message.Publisher, *consumer.Queue, error) {
	pub, sub := GoChannelFactory(gochannel.Config{}, logging.NewWatermillAdapter(logger))
	queue, err := consumer.NewQueue(topic, sub, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return pub, queue, nil
}
