package notifications

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/logger"
)

type fakeEmail struct {
	failures int
	err      error
	calls    int
	sent     []Message
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.sent = append(f.sent, Message{Channel: enums.NotificationChannelEmail, Recipient: to, Subject: subject, Body: body})
	return nil
}

type fakeSMS struct {
	calls int
	err   error
	sent  []Message
}

func (f *fakeSMS) Send(_ context.Context, phone, message string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, Message{Channel: enums.NotificationChannelSMS, Recipient: phone, Body: message})
	return "ATXid_1", nil
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "bad request" }
func (permanentErr) Retryable() bool { return false }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
}

func newTestDispatcher(t *testing.T, email EmailSender, sms SMSSender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{Email: email, SMS: sms, Logger: testLogger(), Backoff: time.Millisecond})
	require.NoError(t, err)
	return d
}

func TestSendRetriesTransientFailures(t *testing.T) {
	email := &fakeEmail{failures: 2, err: errors.New("timeout")}
	d := newTestDispatcher(t, email, nil)

	accepted, err := d.Send(context.Background(), Message{
		Channel:   enums.NotificationChannelEmail,
		Recipient: "wanjiku@example.com",
		Subject:   "Payment received",
		Body:      "Thanks",
	})
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, 3, email.calls)
	require.Len(t, email.sent, 1)
}

func TestSendGivesUpAfterThreeRetries(t *testing.T) {
	sms := &fakeSMS{err: errors.New("gateway down")}
	d := newTestDispatcher(t, nil, sms)

	accepted, err := d.Send(context.Background(), Message{Channel: enums.NotificationChannelSMS, Recipient: "254708374149", Body: "hi"})
	require.Error(t, err)
	require.False(t, accepted)
	require.Equal(t, 4, sms.calls)
}

func TestSendStopsOnPermanentFailure(t *testing.T) {
	email := &fakeEmail{failures: 5, err: permanentErr{}}
	d := newTestDispatcher(t, email, nil)

	_, err := d.Send(context.Background(), Message{Channel: enums.NotificationChannelEmail, Recipient: "x@example.com"})
	require.Error(t, err)
	require.Equal(t, 1, email.calls)
}

func TestSendSkipsDisabledChannel(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)

	accepted, err := d.Send(context.Background(), Message{Channel: enums.NotificationChannelSMS, Recipient: "254708374149", Body: "hi"})
	require.NoError(t, err)
	require.False(t, accepted)
}

func TestSendValidatesMessage(t *testing.T) {
	d := newTestDispatcher(t, &fakeEmail{}, &fakeSMS{})

	_, err := d.Send(context.Background(), Message{Channel: "fax", Recipient: "x"})
	require.Error(t, err)
	_, err = d.Send(context.Background(), Message{Channel: enums.NotificationChannelEmail})
	require.Error(t, err)
}

func TestMaskKeepsLastFour(t *testing.T) {
	require.Equal(t, "********4149", mask("254708374149"))
	require.Equal(t, "****", mask("abc"))
}
