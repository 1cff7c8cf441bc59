package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer carries the contact details notifications are sent to.
type Customer struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// PaymentConfirmedEvent is emitted when a gateway callback settles a payment.
type PaymentConfirmedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiptNo     string          `json:"receipt_no"`
	PayerPhone    *string         `json:"payer_phone,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
	StockDeducted bool            `json:"stock_deducted"`
	Customer      Customer        `json:"customer"`
}

// PaymentFailedEvent is emitted when the gateway reports a non-zero result.
type PaymentFailedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	PaymentID  uuid.UUID       `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	ResultCode int             `json:"result_code"`
	ResultDesc string          `json:"result_desc,omitempty"`
	Customer   Customer        `json:"customer"`
}

// OrderRefundedEvent is emitted when an operator refunds a paid order.
type OrderRefundedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	PaymentID  uuid.UUID       `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	RefundedBy uuid.UUID       `json:"refunded_by"`
	Notes      string          `json:"notes,omitempty"`
	RefundedAt time.Time       `json:"refunded_at"`
	Customer   Customer        `json:"customer"`
}

// OrderExpiredEvent is emitted when the reaper cancels an abandoned order.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiredAt time.Time `json:"expired_at"`
	Customer  Customer  `json:"customer"`
}
