package mpesawebhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/mpesa"
)

const (
	itemAmount          = "Amount"
	itemReceiptNumber   = "MpesaReceiptNumber"
	itemPhoneNumber     = "PhoneNumber"
	itemTransactionDate = "TransactionDate"
)

type envelope struct {
	Body *struct {
		STKCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *json.Number      `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *callbackMetadata `json:"CallbackMetadata"`
}

type callbackMetadata struct {
	Item []metadataItem `json:"Item"`
}

type metadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// Callback is a validated STK push result.
type Callback struct {
	OrderID           *uuid.UUID
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            *decimal.Decimal
	ReceiptNo         string
	PhoneNumber       string
	TransactionDate   time.Time
}

// Succeeded reports whether the gateway reported a completed payment.
func (c *Callback) Succeeded() bool {
	return c != nil && c.ResultCode == 0
}

// ParseCallback decodes the gateway body and the order token carried on the
// callback URL. Successful results must carry the amount and receipt number.
// An order token that is not a UUID is ignored so resolution can fall back.
func ParseCallback(body []byte, orderToken string) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, malformed("callback body is not valid JSON", err)
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return nil, malformed("callback body missing Body.stkCallback", nil)
	}
	raw := env.Body.STKCallback
	if raw.ResultCode == nil {
		return nil, malformed("callback missing ResultCode", nil)
	}
	code, err := raw.ResultCode.Int64()
	if err != nil {
		return nil, malformed("callback ResultCode is not an integer", err)
	}

	cb := &Callback{
		MerchantRequestID: strings.TrimSpace(raw.MerchantRequestID),
		CheckoutRequestID: strings.TrimSpace(raw.CheckoutRequestID),
		ResultCode:        int(code),
		ResultDesc:        strings.TrimSpace(raw.ResultDesc),
	}
	if token := strings.TrimSpace(orderToken); token != "" {
		if id, err := uuid.Parse(token); err == nil {
			cb.OrderID = &id
		}
	}

	if raw.CallbackMetadata != nil {
		for _, item := range raw.CallbackMetadata.Item {
			if err := cb.apply(item); err != nil {
				return nil, err
			}
		}
	}

	if cb.Succeeded() {
		if cb.Amount == nil {
			return nil, malformed("successful callback missing Amount", nil)
		}
		if cb.ReceiptNo == "" {
			return nil, malformed("successful callback missing MpesaReceiptNumber", nil)
		}
	}
	return cb, nil
}

func (c *Callback) apply(item metadataItem) error {
	if item.Value == nil {
		return nil
	}
	value, err := scalar(item.Value)
	if err != nil {
		return malformed(fmt.Sprintf("metadata item %s has an unsupported value", item.Name), err)
	}
	switch item.Name {
	case itemAmount:
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return malformed("metadata Amount is not numeric", err)
		}
		if !amount.IsPositive() {
			return malformed("metadata Amount must be positive", nil)
		}
		c.Amount = &amount
	case itemReceiptNumber:
		c.ReceiptNo = value
	case itemPhoneNumber:
		c.PhoneNumber = value
	case itemTransactionDate:
		if parsed, err := mpesa.ParseTimestamp(value); err == nil {
			c.TransactionDate = parsed
		}
	}
	return nil
}

func scalar(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return "", fmt.Errorf("boolean value")
	default:
		return "", fmt.Errorf("unexpected %T", value)
	}
}

func malformed(message string, cause error) error {
	if cause != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformedCallback, cause, message)
	}
	return pkgerrors.New(pkgerrors.CodeMalformedCallback, message)
}
