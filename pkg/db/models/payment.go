package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/duka/supermarket-backend/pkg/enums"
)

// Payment is one gateway transaction attempt for an order.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	ReceiptNo         *string             `gorm:"column:receipt_no"`
	CheckoutRequestID *string             `gorm:"column:checkout_request_id"`
	PhoneNumber       *string             `gorm:"column:phone_number"`
	TransactionDate   *time.Time          `gorm:"column:transaction_date"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
