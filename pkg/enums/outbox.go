package enums

// OutboxAggregateType maps to the aggregate_type column of outbox rows.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregatePayment}

func (a OutboxAggregateType) IsValid() bool { return member(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, "aggregate type", value)
}

// OutboxEventType maps to the event_type column of outbox rows.
type OutboxEventType string

const (
	EventPaymentConfirmed OutboxEventType = "payment_confirmed"
	EventPaymentFailed    OutboxEventType = "payment_failed"
	EventOrderRefunded    OutboxEventType = "order_refunded"
	EventOrderExpired     OutboxEventType = "order_expired"
)

var outboxEventTypes = []OutboxEventType{
	EventPaymentConfirmed,
	EventPaymentFailed,
	EventOrderRefunded,
	EventOrderExpired,
}

func (e OutboxEventType) IsValid() bool { return member(outboxEventTypes, e) }

// Aggregate returns the aggregate type rows of this event must carry, or ""
// for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch e {
	case EventPaymentConfirmed, EventPaymentFailed:
		return AggregatePayment
	case EventOrderRefunded, EventOrderExpired:
		return AggregateOrder
	}
	return ""
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(outboxEventTypes, "event type", value)
}
