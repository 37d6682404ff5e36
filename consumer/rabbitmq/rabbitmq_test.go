package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

type mockConfig struct {
	queue string
	url   string
}

func (m *mockConfig) GetQueueSystem() string         { return SystemName }
func (m *mockConfig) GetQueue() string               { return m.queue }
func (m *mockConfig) GetKafkaBrokers() []string      { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string  { return "" }
func (m *mockConfig) GetRabbitMQURL() string         { return m.url }
func (m *mockConfig) GetNATSURL() string             { return "" }
func (m *mockConfig) GetNATSStreamName() string      { return "" }
func (m *mockConfig) GetAWSRegion() string           { return "" }
func (m *mockConfig) GetAWSAccountID() string        { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string      { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string  { return "" }
func (m *mockConfig) GetAWSEndpoint() string         { return "" }
func (m *mockConfig) GetIdleInterval() time.Duration { return 0 }

func TestRegistersInDefaultRegistry(t *testing.T) {
	assert.True(t, consumer.DefaultRegistry.Has(SystemName))
}

func TestBuild(t *testing.T) {
	t.Run("creates consumer with mocked factories", func(t *testing.T) {
		origConn := ConnectionFactory
		origSub := SubscriberFactory
		defer func() {
			ConnectionFactory = origConn
			SubscriberFactory = origSub
		}()

		conn := &amqp.ConnectionWrapper{}
		ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
			assert.Equal(t, "amqp://localhost:5672", cfg.AmqpURI)
			return conn, nil
		}
		SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, gotConn *amqp.ConnectionWrapper) (message.Subscriber, error) {
			assert.Equal(t, conn, gotConn)
			return gochannel.NewGoChannel(gochannel.Config{}, logger), nil
		}

		cfg := &mockConfig{queue: "test_topic", url: "amqp://localhost:5672"}
		c, err := Build(context.Background(), cfg, logging.Nop())

		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("returns error when connection factory fails", func(t *testing.T) {
		original := ConnectionFactory
		defer func() { ConnectionFactory = original }()

		ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
			return nil, errors.New("connection error")
		}

		_, err := Build(context.Background(), &mockConfig{queue: "test_topic"}, logging.Nop())
		assert.Error(t, err)
	})

	t.Run("returns error when subscriber factory fails", func(t *testing.T) {
		origConn := ConnectionFactory
		origSub := SubscriberFactory
		defer func() {
			ConnectionFactory = origConn
			SubscriberFactory = origSub
		}()

		ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
			return &amqp.ConnectionWrapper{}, nil
		}
		SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &mockConfig{queue: "test_topic"}, logging.Nop())
		assert.Error(t, err)
	})
}
