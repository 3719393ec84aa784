package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

var errNoBrokers = errors.New("at least one kafka broker is required")

// Producer writes keyed messages synchronously. The topic is chosen per
// message so one writer serves every topic in the event registry.
type Producer struct {
	w       *kafka.Writer
	brokers []string
	timeout time.Duration
}

// Message is one record headed for a topic.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// NewProducer builds a writer that hashes keys onto partitions, so every
// event for one order lands on the same partition in order.
func NewProducer(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "brokers", strings.Join(brokers, ",")), "kafka producer initialized")
	}
	return &Producer{w: w, brokers: brokers, timeout: timeout}, nil
}

// Write sends msg and waits for every in-sync replica to acknowledge it.
func (p *Producer) Write(ctx context.Context, msg Message) error {
	if p == nil || p.w == nil {
		return errors.New("kafka producer not initialized")
	}
	if strings.TrimSpace(msg.Topic) == "" {
		return errors.New("kafka message topic is required")
	}
	return p.w.WriteMessages(ctx, toKafkaMessage(msg, time.Now().UTC()))
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil {
		return errors.New("kafka producer not initialized")
	}
	var lastErr error
	for _, broker := range p.brokers {
		dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

func toKafkaMessage(msg Message, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    now,
	}
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
