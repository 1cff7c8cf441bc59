package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/outbox"
	"github.com/duka/supermarket-backend/pkg/outbox/idempotency"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "sm:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func newTestConsumer(t *testing.T, email *fakeEmail, sms *fakeSMS) (*Consumer, *memoryStore) {
	t.Helper()
	store := &memoryStore{values: map[string]string{}}
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	dispatcher, err := NewDispatcher(DispatcherParams{Email: email, SMS: sms, Logger: testLogger(), Backoff: time.Millisecond, MaxRetries: 1})
	require.NoError(t, err)
	consumer, err := NewConsumer(noopReceiver{}, manager, dispatcher, testLogger())
	require.NoError(t, err)
	return consumer, store
}

func envelopeFor(t *testing.T, data any) (string, []byte) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope := outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), OccurredAt: time.Now().UTC(), Data: raw}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return envelope.EventID, body
}

func confirmedEvent() payloads.PaymentConfirmedEvent {
	email := "wanjiku@example.com"
	phone := "254708374149"
	return payloads.PaymentConfirmedEvent{
		OrderID:   uuid.MustParse("3f0c86ac-2f62-4a8e-9df1-bb0a1e7c0d5e"),
		PaymentID: uuid.New(),
		Amount:    decimal.RequireFromString("349.90"),
		ReceiptNo: "QKT1ABC2DE",
		Customer:  payloads.Customer{Name: "Wanjiku", Email: &email, Phone: &phone},
	}
}

func attrs(eventType enums.OutboxEventType) map[string]string {
	return map[string]string{"event_type": string(eventType)}
}

func TestConsumerSendsEmailAndSMSOnce(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	consumer, _ := newTestConsumer(t, email, sms)
	_, body := envelopeFor(t, confirmedEvent())

	require.True(t, consumer.process(context.Background(), "m1", attrs(enums.EventPaymentConfirmed), body))
	require.Len(t, email.sent, 1)
	require.Len(t, sms.sent, 1)
	require.Equal(t, "Payment received for order 3f0c86ac", email.sent[0].Subject)
	require.True(t, strings.Contains(sms.sent[0].Body, "KSh 349.90"))
	require.True(t, strings.Contains(sms.sent[0].Body, "QKT1ABC2DE"))

	// redelivery of the same event is acked without sending again
	require.True(t, consumer.process(context.Background(), "m2", attrs(enums.EventPaymentConfirmed), body))
	require.Len(t, email.sent, 1)
	require.Len(t, sms.sent, 1)
}

func TestConsumerNacksAndForgetsOnDispatchFailure(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{err: errors.New("gateway down")}
	consumer, store := newTestConsumer(t, email, sms)
	eventID, body := envelopeFor(t, confirmedEvent())

	require.False(t, consumer.process(context.Background(), "m1", attrs(enums.EventPaymentConfirmed), body))
	require.NotContains(t, store.values, store.IdempotencyKey("evt:processed:"+ConsumerName, eventID))
}

func TestConsumerAcksUnusableMessages(t *testing.T) {
	consumer, _ := newTestConsumer(t, &fakeEmail{}, &fakeSMS{})

	require.True(t, consumer.process(context.Background(), "m1", attrs(enums.EventPaymentConfirmed), []byte("not json")))

	_, body := envelopeFor(t, confirmedEvent())
	require.True(t, consumer.process(context.Background(), "m2", attrs("inventory_adjusted"), body))
}

func TestConsumerSkipsCustomersWithoutContact(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	consumer, _ := newTestConsumer(t, email, sms)
	_, body := envelopeFor(t, payloads.OrderExpiredEvent{OrderID: uuid.New(), Customer: payloads.Customer{Name: "Walk-in"}})

	require.True(t, consumer.process(context.Background(), "m1", attrs(enums.EventOrderExpired), body))
	require.Zero(t, email.calls)
	require.Zero(t, sms.calls)
}

func TestMessagesForFailedPaymentUsesPayloadContacts(t *testing.T) {
	phone := "254711000111"
	messages := messagesFor(&payloads.PaymentFailedEvent{
		OrderID:  uuid.MustParse("aa0c86ac-2f62-4a8e-9df1-bb0a1e7c0d5e"),
		Amount:   decimal.NewFromInt(200),
		Customer: payloads.Customer{Name: "Otieno", Phone: &phone},
	})
	require.Len(t, messages, 1)
	require.Equal(t, enums.NotificationChannelSMS, messages[0].Channel)
	require.Equal(t, phone, messages[0].Recipient)
	require.Contains(t, messages[0].Body, "aa0c86ac")
}
