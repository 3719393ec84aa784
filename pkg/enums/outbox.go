package enums

// OutboxAggregateType is the kind of entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
)

var aggregateTypes = newDomain("aggregate type", AggregateOrder)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names the domain event and travels as the event_type
// message attribute.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderStatusChanged   OutboxEventType = "order_status_changed"
	EventPaymentStatusChanged OutboxEventType = "payment_status_changed"
)

var eventTypes = newDomain("event type",
	EventOrderCreated,
	EventOrderStatusChanged,
	EventPaymentStatusChanged,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}

// OutboxDLQErrorReason records why an outbox event stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = newDomain("outbox dlq error reason",
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
)

func (r OutboxDLQErrorReason) String() string { return string(r) }

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return dlqReasons.parse(value)
}
