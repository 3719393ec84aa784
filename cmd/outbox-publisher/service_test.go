package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	out := &fakeSink{errs: []error{errors.New("transient"), nil}}
	metrics := &fakeMetrics{}
	service := newTestService(t, repo, out, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)
	service.metrics = metrics

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, 1, metrics.published)
	assert.Equal(t, 1, metrics.batches)
}

func TestServiceSendsKeyedMessage(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "status"),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	out := &fakeSink{}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, out, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, out.sent, 1)

	msg := out.sent[0]
	assert.Equal(t, "orders-topic", msg.Topic)
	assert.Equal(t, event.AggregateID.String(), msg.Key)
	assert.Equal(t, []byte(event.Payload), msg.Data)
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, "order_status_changed", msg.Attributes["event_type"])
	assert.Equal(t, "order", msg.Attributes["aggregate_type"])
	assert.Equal(t, "2026-03-01T12:00:00Z", msg.Attributes["created_at"])
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	out := &fakeSink{}
	service := newTestService(t, repo, out, reg, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, out.sent)
	require.Len(t, dlqRepo.entries, 1)
	entry := dlqRepo.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestServiceDeadLettersSinkNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "no-topic"),
	}
	dlqRepo := &fakeDLQRepo{}
	out := &fakeSink{errs: []error{registry.NewNonRetryableError(errors.New("publisher not configured"))}}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, out, &fakeRegistry{resolved: orderResolved()}, dlqRepo, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlqRepo.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlqRepo.entries[0].ErrorReason)
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	out := &fakeSink{errs: []error{errors.New("transient")}}
	dlqRepo := &fakeDLQRepo{}
	metrics := &fakeMetrics{}
	service := newTestService(t, repo, out, &fakeRegistry{resolved: orderResolved()}, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})
	service.metrics = metrics

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, dlqRepo.entries, 1)
	assert.Equal(t, event.ID, dlqRepo.entries[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlqRepo.entries[0].ErrorReason)
	assert.Empty(t, repo.failed)
	assert.Equal(t, 1, metrics.deadLettered)
}

func TestServiceEmptyBatch(t *testing.T) {
	metrics := &fakeMetrics{}
	service := newTestService(t, &fakeRepo{}, &fakeSink{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	service.metrics = metrics

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Zero(t, metrics.batches)
}

func TestRunStopsWhenSinkUnreachable(t *testing.T) {
	out := &fakeSink{pingErr: errors.New("connection refused")}
	service := newTestService(t, &fakeRepo{}, out, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	err := service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake ping failed")
}

func TestRunReturnsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakeSink{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, nextBackoff(0, base, maxBackoff))
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, base, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))
}

func TestNewServiceRequiresSink(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.Nop(),
		DB:            &fakeDB{},
		Repository:    &fakeRepo{},
		Registry:      &fakeRegistry{},
		DLQRepository: &fakeDLQRepo{},
	})
	require.EqualError(t, err, "broker sink is required")

	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
	assert.Contains(t, err.Error(), "dlq repository is required")
}

func TestProcessBatchAgainstDatabase(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:publisher_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	ctx := context.Background()

	repo := outbox.NewRepository(conn)
	emitter := outbox.NewService(repo, logger.Nop())
	orderID := uuid.New()
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID, TotalCents: 1500, ItemCount: 1},
		}); err != nil {
			return err
		}
		// no payload: the registry rejects it and it is dead-lettered
		return emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          nil,
		})
	}))

	reg, err := registry.NewEventRegistry(config.OutboxConfig{OrdersTopic: "marketplace-orders"})
	require.NoError(t, err)
	dlqRepo := outbox.NewDLQRepository(conn)
	out := &fakeSink{}
	service, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, MaxAttempts: 3}},
		Logger:        logger.Nop(),
		DB:            db.Wrap(conn),
		Sink:          out,
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlqRepo,
	})
	require.NoError(t, err)

	processed, err := service.processBatch(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, out.sent, 1)
	assert.Equal(t, "marketplace-orders", out.sent[0].Topic)
	assert.Equal(t, orderID.String(), out.sent[0].Key)

	rows, err := repo.ListByAggregate(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	var published, parked *models.OutboxEvent
	for i := range rows {
		if rows[i].PublishedAt != nil {
			published = &rows[i]
		} else {
			parked = &rows[i]
		}
	}
	require.NotNil(t, published)
	require.NotNil(t, parked)
	assert.Equal(t, enums.EventOrderCreated, published.EventType)
	assert.Equal(t, 3, parked.AttemptCount)

	dead, err := dlqRepo.FindByEventID(ctx, parked.ID)
	require.NoError(t, err)
	require.NotNil(t, dead)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dead.ErrorReason)

	processed, err = service.processBatch(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
}

func orderResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "orders-topic",
			AggregateType: enums.AggregateOrder,
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
}

func newTestService(t *testing.T, repo outboxRepository, out sink, reg registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:        &config.Config{Outbox: outboxCfg},
		Logger:        logg,
		DB:            &fakeDB{},
		Sink:          out,
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlq,
	})
	require.NoError(t, err)
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeSink struct {
	errs    []error
	sent    []outboundMessage
	pingErr error
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Ping(context.Context) error { return f.pingErr }

func (f *fakeSink) Send(_ context.Context, msg outboundMessage) error {
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	return err
}

func (f *fakeSink) Close() error { return nil }

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeMetrics struct {
	batches, published, failed, deadLettered int
}

func (f *fakeMetrics) ObserveBatch(time.Duration) { f.batches++ }
func (f *fakeMetrics) IncPublished(string)        { f.published++ }
func (f *fakeMetrics) IncFailed(string)           { f.failed++ }
func (f *fakeMetrics) IncDeadLettered(string)     { f.deadLettered++ }
