// Package sms sends text messages through the Africa's Talking bulk SMS API.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/duka/supermarket-backend/pkg/config"
)

const responseReadLimit int64 = 4096

// Client posts messages to the Africa's Talking messaging endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	username   string
	apiKey     string
	senderID   string
}

// NewClient builds an SMS client. A nil httpClient gets a 10s timeout.
func NewClient(cfg config.SMSConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("sms username and api key are required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("sms endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		username:   strings.TrimSpace(cfg.Username),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		senderID:   strings.TrimSpace(cfg.SenderID),
	}, nil
}

type sendResponse struct {
	SMSMessageData struct {
		Message    string      `json:"Message"`
		Recipients []recipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

type recipient struct {
	StatusCode int    `json:"statusCode"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	MessageID  string `json:"messageId"`
}

// accepted covers Processed, Sent and Queued.
func (r recipient) accepted() bool {
	return r.StatusCode >= 100 && r.StatusCode <= 102
}

// Send delivers message to phone, an E.164 number with or without the
// leading plus. It returns the provider message id.
func (c *Client) Send(ctx context.Context, phone, message string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", errors.New("recipient phone is required")
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", phone)
	form.Set("message", message)
	if c.senderID != "" {
		form.Set("from", c.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("apiKey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return "", fmt.Errorf("read sms response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}
	for _, r := range parsed.SMSMessageData.Recipients {
		if r.accepted() {
			return r.MessageID, nil
		}
	}
	return "", fmt.Errorf("sms rejected: %s", parsed.SMSMessageData.Message)
}

// StatusError is a non-2xx answer from the SMS gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sms gateway returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
