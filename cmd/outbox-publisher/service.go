package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherMetrics interface {
	ObserveBatch(time.Duration)
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncDeadLettered(eventType string)
}

// ServiceParams wires the publisher. Metrics is optional.
type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Sink          sink
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       publisherMetrics
}

func (p ServiceParams) check() error {
	required := []struct {
		name    string
		missing bool
	}{
		{"config", p.Config == nil},
		{"logger", p.Logger == nil},
		{"database client", p.DB == nil},
		{"broker sink", p.Sink == nil},
		{"outbox repository", p.Repository == nil},
		{"event registry", p.Registry == nil},
		{"dlq repository", p.DLQRepository == nil},
	}
	var err error
	for _, r := range required {
		if r.missing {
			err = multierr.Append(err, fmt.Errorf("%s is required", r.name))
		}
	}
	return err
}

// Service drains outbox_events into the configured broker. Rows are claimed
// and marked inside one transaction per batch, so a crash mid-batch leaves
// them unpublished and they are delivered again (at-least-once).
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	sink         sink
	registry     registryResolver
	dlq          dlqRepository
	metrics      publisherMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.check(); err != nil {
		return nil, err
	}
	cfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		sink:         params.Sink,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		batchSize:    orDefault(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  orDefault(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(orDefault(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run blocks until ctx is done or a dependency is unreachable at start-up.
// Busy batches are followed immediately by the next one; idle polls and
// failed batches wait, the latter with exponential backoff.
func (s *Service) Run(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{s.sink.Name(), s.sink.Ping},
	}
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			s.logg.Error(ctx, "publisher.dependency_unreachable", err)
			return fmt.Errorf("%s ping failed: %w", c.name, err)
		}
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "publisher.stopped")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "publisher.batch_failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = withJitter(backoff)
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			wait = withJitter(s.pollInterval)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// processBatch reports whether any rows were claimed. Only bookkeeping
// failures abort the batch; the transaction then rolls back every mark.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.record(ctx, tx, event, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 && s.metrics != nil {
		s.metrics.ObserveBatch(time.Since(start))
	}
	return claimed > 0, err
}
