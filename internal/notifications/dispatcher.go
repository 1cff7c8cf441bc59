// Package notifications turns order and payment events into customer emails
// and text messages.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/logger"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 2 * time.Second
)

// EmailSender delivers one plain-text email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers one text message and returns the provider's id.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) (string, error)
}

// Message is a single customer notification.
type Message struct {
	Channel   enums.NotificationChannel
	Recipient string
	Subject   string
	Body      string
}

type retryableError interface {
	Retryable() bool
}

// DispatcherParams configure the dispatcher. A nil sender disables its
// channel; messages for it are skipped.
type DispatcherParams struct {
	Email      EmailSender
	SMS        SMSSender
	Logger     *logger.Logger
	MaxRetries uint64
	Backoff    time.Duration
}

// Dispatcher sends messages with bounded retries.
type Dispatcher struct {
	email      EmailSender
	sms        SMSSender
	logg       *logger.Logger
	maxRetries uint64
	backoff    time.Duration
}

// NewDispatcher builds a dispatcher retrying 3 times by default.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retries := params.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	backoff := params.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Dispatcher{
		email:      params.Email,
		sms:        params.SMS,
		logg:       params.Logger,
		maxRetries: retries,
		backoff:    backoff,
	}, nil
}

// Send delivers msg. accepted is false with a nil error when the channel is
// not configured, so callers can ack the event.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (bool, error) {
	if !msg.Channel.IsValid() {
		return false, fmt.Errorf("unknown notification channel %q", msg.Channel)
	}
	if strings.TrimSpace(msg.Recipient) == "" {
		return false, errors.New("recipient is required")
	}

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"channel":   msg.Channel,
		"recipient": mask(msg.Recipient),
	})

	var send func(context.Context) error
	switch msg.Channel {
	case enums.NotificationChannelEmail:
		if d.email == nil {
			d.logg.Warn(logCtx, "notification.channel_disabled")
			return false, nil
		}
		send = func(ctx context.Context) error {
			return d.email.Send(ctx, msg.Recipient, msg.Subject, msg.Body)
		}
	case enums.NotificationChannelSMS:
		if d.sms == nil {
			d.logg.Warn(logCtx, "notification.channel_disabled")
			return false, nil
		}
		send = func(ctx context.Context) error {
			_, err := d.sms.Send(ctx, msg.Recipient, msg.Body)
			return err
		}
	}

	attempt := 0
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewConstant(d.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := send(ctx)
		if err == nil {
			return nil
		}
		var typed retryableError
		if errors.As(err, &typed) && !typed.Retryable() {
			return err
		}
		d.logg.Warn(d.logg.WithField(logCtx, "attempt", attempt), "notification.send_retry")
		return retry.RetryableError(err)
	})
	if err != nil {
		d.logg.Error(d.logg.WithField(logCtx, "attempts", attempt), "notification.send_failed", err)
		return false, err
	}
	d.logg.Info(d.logg.WithField(logCtx, "attempts", attempt), "notification.sent")
	return true, nil
}

// mask keeps the last four characters of a recipient for logs.
func mask(recipient string) string {
	if len(recipient) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-4:]
}
