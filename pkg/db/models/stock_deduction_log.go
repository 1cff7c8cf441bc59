package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/duka/supermarket-backend/pkg/enums"
)

// StockDeductionLog records one immutable inventory-affecting action.
// ProductID is nil for aggregate refund entries.
type StockDeductionLog struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	PaymentID *uuid.UUID        `gorm:"column:payment_id;type:uuid"`
	ProductID *uuid.UUID        `gorm:"column:product_id;type:uuid"`
	Quantity  int               `gorm:"column:quantity;not null"`
	Action    enums.StockAction `gorm:"column:action;type:text;not null"`
	Source    enums.StockSource `gorm:"column:source;type:text;not null;default:'AUTO'"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Notes     *string           `gorm:"column:notes"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
