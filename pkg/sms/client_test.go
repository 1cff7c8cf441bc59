package sms

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duka/supermarket-backend/pkg/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var testCfg = config.SMSConfig{
	Username: "sandbox",
	APIKey:   "at-key",
	SenderID: "DUKA",
	Endpoint: "https://api.sandbox.africastalking.com/version1/messaging",
}

func TestSendPostsForm(t *testing.T) {
	var captured *http.Request
	var form string
	client, err := NewClient(testCfg, &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r
		raw, _ := io.ReadAll(r.Body)
		form = string(raw)
		return respond(201, `{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"statusCode":101,"number":"+254708374149","status":"Success","messageId":"ATXid_1"}]}}`), nil
	})})
	require.NoError(t, err)

	id, err := client.Send(context.Background(), "254708374149", "Payment received")
	require.NoError(t, err)
	require.Equal(t, "ATXid_1", id)
	require.Equal(t, "at-key", captured.Header.Get("apiKey"))
	require.Contains(t, form, "to=%2B254708374149")
	require.Contains(t, form, "from=DUKA")
	require.Contains(t, form, "username=sandbox")
}

func TestSendRejectedRecipient(t *testing.T) {
	client, err := NewClient(testCfg, &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return respond(201, `{"SMSMessageData":{"Message":"Sent to 0/1","Recipients":[{"statusCode":403,"number":"+254700000000","status":"InvalidPhoneNumber"}]}}`), nil
	})})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "+254700000000", "hi")
	require.ErrorContains(t, err, "sms rejected")
}

func TestSendGatewayError(t *testing.T) {
	client, err := NewClient(testCfg, &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return respond(500, "upstream down"), nil
	})})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "254708374149", "hi")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.True(t, statusErr.Retryable())
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.SMSConfig{Endpoint: "x"}, nil)
	require.Error(t, err)
}
