package main

import (
	"context"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/kafka"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/registry"
	"github.com/angelmondragon/marketplace-checkout/pkg/pubsub"
)

// outboundMessage is what the publisher hands a broker.
type outboundMessage struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

type sink interface {
	Name() string
	Ping(context.Context) error
	Send(context.Context, outboundMessage) error
	Close() error
}

func newSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Outbox.Broker)) {
	case config.BrokerKafka:
		producer, err := kafka.NewProducer(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, err
		}
		return &kafkaSink{producer: producer}, nil
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		return &pubsubSink{client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported outbox broker %q", cfg.Outbox.Broker)
	}
}

type kafkaSink struct {
	producer *kafka.Producer
}

func (s *kafkaSink) Name() string { return config.BrokerKafka }

func (s *kafkaSink) Ping(ctx context.Context) error { return s.producer.Ping(ctx) }

func (s *kafkaSink) Send(ctx context.Context, msg outboundMessage) error {
	return s.producer.Write(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Data,
		Headers: msg.Attributes,
	})
}

func (s *kafkaSink) Close() error { return s.producer.Close() }

type pubsubSink struct {
	client *pubsub.Client
}

func (s *pubsubSink) Name() string { return config.BrokerPubSub }

func (s *pubsubSink) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

// Send publishes with the aggregate id as ordering key and blocks until the
// server acknowledges the message.
func (s *pubsubSink) Send(ctx context.Context, msg outboundMessage) error {
	pub := s.client.Publisher(msg.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", msg.Topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if _, err := result.Get(ctx); err != nil {
		// a failed ordered publish pauses the key until resumed
		pub.ResumePublish(msg.Key)
		return err
	}
	return nil
}

func (s *pubsubSink) Close() error { return s.client.Close() }
