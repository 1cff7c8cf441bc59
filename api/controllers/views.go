package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
)

type orderItemView struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderView struct {
	ID            uuid.UUID         `json:"id"`
	CustomerID    *uuid.UUID        `json:"customer_id,omitempty"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail *string           `json:"customer_email,omitempty"`
	CustomerPhone *string           `json:"customer_phone,omitempty"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	Status        enums.OrderStatus `json:"status"`
	Items         []orderItemView   `json:"items"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func newOrderView(order *models.Order) orderView {
	items := make([]orderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemView{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
		})
	}
	return orderView{
		ID:            order.ID,
		CustomerID:    order.CustomerID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		TotalPrice:    order.TotalPrice,
		Status:        order.Status,
		Items:         items,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

type ledgerEntryView struct {
	ID        uuid.UUID         `json:"id"`
	OrderID   uuid.UUID         `json:"order_id"`
	PaymentID *uuid.UUID        `json:"payment_id,omitempty"`
	ProductID *uuid.UUID        `json:"product_id,omitempty"`
	Quantity  int               `json:"quantity"`
	Action    enums.StockAction `json:"action"`
	Source    enums.StockSource `json:"source"`
	ActorID   *uuid.UUID        `json:"actor_id,omitempty"`
	Notes     *string           `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func newLedgerEntryView(entry models.StockDeductionLog) ledgerEntryView {
	return ledgerEntryView{
		ID:        entry.ID,
		OrderID:   entry.OrderID,
		PaymentID: entry.PaymentID,
		ProductID: entry.ProductID,
		Quantity:  entry.Quantity,
		Action:    entry.Action,
		Source:    entry.Source,
		ActorID:   entry.ActorID,
		Notes:     entry.Notes,
		CreatedAt: entry.CreatedAt,
	}
}

func newLedgerViews(entries []models.StockDeductionLog) []ledgerEntryView {
	out := make([]ledgerEntryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, newLedgerEntryView(entry))
	}
	return out
}

type dlqEntryView struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Payload       json.RawMessage            `json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
}

func newDLQViews(entries []models.OutboxDLQ) []dlqEntryView {
	out := make([]dlqEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, dlqEntryView{
			EventID:       e.EventID,
			EventType:     e.EventType,
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			Payload:       e.Payload,
			ErrorReason:   e.ErrorReason,
			ErrorMessage:  e.ErrorMessage,
			AttemptCount:  e.AttemptCount,
			FailedAt:      e.FailedAt,
		})
	}
	return out
}
