// Package sendgrid sends transactional order emails through SendGrid.
package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/duka/supermarket-backend/pkg/config"
)

const maxErrorBody = 512

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Client sends plain-text emails from the configured sender.
type Client struct {
	sender   mailSender
	fromAddr string
	fromName string
}

// NewClient builds a SendGrid client. The API key is required.
func NewClient(cfg config.SendgridConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	return newClient(sg.NewSendClient(key), cfg)
}

func newClient(sender mailSender, cfg config.SendgridConfig) (*Client, error) {
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &Client{sender: sender, fromAddr: from, fromName: cfg.FromName}, nil
}

// Send delivers one email. SendGrid answers 202 when it accepts the message.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("recipient email is required")
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(c.fromName, c.fromAddr),
		subject,
		mail.NewEmail("", to),
		body,
		"",
	)
	resp, err := c.sender.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := resp.Body
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: detail}
	}
	return nil
}

// StatusError is a non-2xx answer from SendGrid.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sendgrid returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether resending may succeed. Client errors other than
// throttling will fail the same way again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
