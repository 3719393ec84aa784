package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/registry"
)

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// outcome is the result of one delivery attempt, before any row is touched.
type outcome struct {
	verdict  verdict
	reason   enums.OutboxDLQErrorReason
	err      error
	topic    string
	envelope outbox.PayloadEnvelope
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) outcome {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	out := outcome{topic: resolved.Descriptor.Topic, envelope: resolved.Envelope}

	sendCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	err = s.sink.Send(sendCtx, messageFor(event, resolved))
	switch {
	case err == nil:
		out.verdict = verdictPublished
	case registry.IsNonRetryable(err):
		out.verdict, out.reason, out.err = verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= s.maxAttempts:
		out.verdict, out.reason = verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
		out.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		out.verdict, out.err = verdictRetry, err
	}
	return out
}

func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) outboundMessage {
	return outboundMessage{
		Topic: resolved.Descriptor.Topic,
		Key:   event.AggregateID.String(),
		Data:  event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// record applies an outcome to the claimed row inside the batch transaction.
func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	ctx = s.logg.WithFields(ctx, s.eventFields(event, out))
	eventType := string(event.EventType)

	switch out.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(ctx, "outbox.published")
		s.count(func(m publisherMetrics) { m.IncPublished(eventType) })

	case verdictRetry:
		s.logg.Warn(s.logg.WithField(ctx, "error", out.err.Error()), "outbox.publish_failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.count(func(m publisherMetrics) { m.IncFailed(eventType) })

	case verdictDeadLetter:
		s.logg.Warn(s.logg.WithField(ctx, "error", out.err.Error()), "outbox.dead_lettered")
		msg := out.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   out.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, out.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.count(func(m publisherMetrics) { m.IncDeadLettered(eventType) })
	}
	return nil
}

func (s *Service) count(fn func(publisherMetrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, out outcome) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount + 1,
		"broker":         s.sink.Name(),
	}
	if out.envelope.EventID != "" {
		fields["event_id"] = out.envelope.EventID
		fields["occurred_at"] = out.envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	if out.reason != "" {
		fields["error_reason"] = out.reason
	}
	return fields
}
