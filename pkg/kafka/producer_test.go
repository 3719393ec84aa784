package kafka

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
)

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), config.KafkaConfig{Brokers: []string{" ", ""}}, nil)
	require.ErrorIs(t, err, errNoBrokers)
}

func TestNewProducerConfiguresWriter(t *testing.T) {
	p, err := NewProducer(context.Background(), config.KafkaConfig{
		Brokers:  []string{" broker-1:9092", "broker-2:9092 "},
		ClientID: "marketplace-outbox",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, p.brokers)
	assert.Equal(t, defaultWriteTimeout, p.timeout)
	assert.Equal(t, kafka.RequireAll, p.w.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, p.w.Balancer)
	assert.Empty(t, p.w.Topic)
}

func TestWriteRejectsMissingTopic(t *testing.T) {
	p, err := NewProducer(context.Background(), config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	err = p.Write(context.Background(), Message{Key: "order-1", Value: []byte("{}")})
	require.Error(t, err)
}

func TestToKafkaMessage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := toKafkaMessage(Message{
		Topic:   "marketplace-orders",
		Key:     "order-1",
		Value:   []byte(`{"ok":true}`),
		Headers: map[string]string{"event_type": "order_created", "event_id": "abc"},
	}, now)

	assert.Equal(t, "marketplace-orders", msg.Topic)
	assert.Equal(t, []byte("order-1"), msg.Key)
	assert.Equal(t, now, msg.Time)

	keys := make([]string, 0, len(msg.Headers))
	for _, h := range msg.Headers {
		keys = append(keys, h.Key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"event_id", "event_type"}, keys)
}
