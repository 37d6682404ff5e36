package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker/logging"
	"github.com/queueworks/routeflow/internal/worker/metadata"
)

type mockConfig struct {
	queue        string
	idleInterval time.Duration
}

func (m *mockConfig) GetQueueSystem() string         { return SystemName }
func (m *mockConfig) GetQueue() string               { return m.queue }
func (m *mockConfig) GetKafkaBrokers() []string      { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string  { return "" }
func (m *mockConfig) GetRabbitMQURL() string         { return "" }
func (m *mockConfig) GetNATSURL() string             { return "" }
func (m *mockConfig) GetNATSStreamName() string      { return "" }
func (m *mockConfig) GetAWSRegion() string           { return "" }
func (m *mockConfig) GetAWSAccountID() string        { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string      { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string  { return "" }
func (m *mockConfig) GetAWSEndpoint() string         { return "" }
func (m *mockConfig) GetIdleInterval() time.Duration { return m.idleInterval }

func TestRegistersInDefaultRegistry(t *testing.T) {
	assert.True(t, consumer.DefaultRegistry.Has(SystemName))
}

func TestBuild(t *testing.T) {
	c, err := Build(context.Background(), &mockConfig{queue: "test_topic"}, logging.Nop())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestNewPubSubRoundTrip(t *testing.T) {
	pub, queue, err := NewPubSub("test_topic", logging.Nop())
	require.NoError(t, err)

	var mu sync.Mutex
	var got []byte
	received := make(chan struct{})

	queue.CreateConsumer(func(ctx context.Context, payload []byte, attrs metadata.Attributes) {
		mu.Lock()
		got = payload
		mu.Unlock()
		close(received)
	})

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop(context.Background())

	msg := message.NewMessage(watermill.NewUUID(), []byte("payload"))
	require.NoError(t, pub.Publish("test_topic", msg))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("payload"), got)
}
