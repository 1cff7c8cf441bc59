// Package mpesa is a minimal Safaricom Daraja client for Lipa Na M-Pesa
// Online (STK push) initiation.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/duka/supermarket-backend/pkg/config"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

const (
	oauthPath                   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath                 = "/mpesa/stkpush/v1/processrequest"
	transactionTypePayBill      = "CustomerPayBillOnline"
	timestampLayout             = "20060102150405"
	tokenRefreshMargin          = time.Minute
	responseBodyReadLimit int64 = 1024
)

var (
	errCredentialsRequired = errors.New("mpesa consumer key and secret are required")
	errShortCodeRequired   = errors.New("mpesa shortcode and passkey are required")
)

// Client wraps the Daraja OAuth and STK push endpoints.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	now            func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Daraja host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithClock overrides the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Daraja client from configuration.
func NewClient(cfg config.MpesaConfig, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.ConsumerKey)
	secret := strings.TrimSpace(cfg.ConsumerSecret)
	if key == "" || secret == "" {
		return nil, errCredentialsRequired
	}
	if strings.TrimSpace(cfg.ShortCode) == "" || strings.TrimSpace(cfg.Passkey) == "" {
		return nil, errShortCodeRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        cfg.BaseURL(),
		consumerKey:    key,
		consumerSecret: secret,
		shortCode:      strings.TrimSpace(cfg.ShortCode),
		passkey:        strings.TrimSpace(cfg.Passkey),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// STKPushRequest describes one payment prompt sent to the customer's phone.
type STKPushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	TransactionDesc  string
	CallbackURL      string
}

// STKPushResponse is Daraja's synchronous acknowledgement. The payment
// outcome arrives later on the callback URL.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks Daraja to prompt the payer for their M-Pesa PIN.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mpesa client not configured")
	}
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be at least 1 shilling")
	}
	if strings.TrimSpace(req.CallbackURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback url is required")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(nairobi).Format(timestampLayout)
	payload := stkPushPayload{
		BusinessShortCode: c.shortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            req.Amount,
		PartyA:            phone,
		PartyB:            c.shortCode,
		PhoneNumber:       phone,
		CallBackURL:       req.CallbackURL,
		AccountReference:  truncate(req.AccountReference, 12),
		TransactionDesc:   truncate(req.TransactionDesc, 13),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal stk push request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(stkPushPath), bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build stk push request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute stk push request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "stk push request failed")
	}

	var out STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stk push response")
	}
	if out.ResponseCode != "0" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stk push rejected").
			WithDetails(map[string]any{"response_code": out.ResponseCode, "description": out.ResponseDescription})
	}
	if out.CheckoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stk push response missing checkout request id")
	}
	return &out, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(oauthPath), nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build oauth request")
	}
	httpReq.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute oauth request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "oauth request failed")
	}

	var apiResp struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode oauth response")
	}
	if apiResp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "oauth response missing access token")
	}

	ttl := time.Hour
	if seconds, err := apiResp.ExpiresIn.Int64(); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	c.token = apiResp.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenRefreshMargin)
	return c.token, nil
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + timestamp))
}

func (c *Client) buildURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
