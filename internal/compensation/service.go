// Package compensation holds the operator actions that correct stock and
// money after the fact: refunds, manual deductions and manual rollbacks.
package compensation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/internal/inventory"
	"github.com/duka/supermarket-backend/internal/ledger"
	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/internal/payments"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/outbox"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockMutator is the subset of the inventory mutator used by operators.
type StockMutator interface {
	Rollback(ctx context.Context, tx *gorm.DB, input inventory.RollbackInput) (bool, error)
	DeductProduct(ctx context.Context, tx *gorm.DB, input inventory.ProductDeductInput) (*models.StockDeductionLog, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor is the authenticated operator performing a compensation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.OperatorRole
}

func (a Actor) validate() error {
	if a.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "operator identity missing")
	}
	if !a.Role.CanCompensate() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "owner or admin role required")
	}
	return nil
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// Service exposes the compensation actions.
type Service interface {
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
	ManualDeduct(ctx context.Context, input ManualDeductInput) (*ManualDeductResult, error)
	Rollback(ctx context.Context, input RollbackInput) (*RollbackResult, error)
}

// RefundInput identifies the settled payment to refund.
type RefundInput struct {
	PaymentID uuid.UUID
	Actor     Actor
	Notes     string
}

// RefundResult reports the refunded order and the units put back on shelf.
type RefundResult struct {
	OrderID       uuid.UUID         `json:"order_id"`
	PaymentID     uuid.UUID         `json:"payment_id"`
	OrderStatus   enums.OrderStatus `json:"order_status"`
	RestoredUnits int               `json:"restored_units"`
}

// ManualDeductInput is one operator decrement against an order.
type ManualDeductInput struct {
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Notes     string    `json:"notes,omitempty"`
	Actor     Actor     `json:"-"`
}

// ManualDeductResult carries the ledger row written and the order status after the deduction.
type ManualDeductResult struct {
	Entry       *models.StockDeductionLog `json:"entry"`
	OrderStatus enums.OrderStatus         `json:"order_status"`
}

// RollbackInput reverses the deduction recorded for an (order, payment) pair.
type RollbackInput struct {
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	PaymentID uuid.UUID `json:"payment_id" validate:"required"`
	Notes     string    `json:"notes,omitempty"`
	Actor     Actor     `json:"-"`
}

// RollbackResult lists the ROLLBACK rows written. NothingToDo is set when
// the pair has no deduction to reverse.
type RollbackResult struct {
	Entries     []models.StockDeductionLog `json:"entries"`
	NothingToDo bool                       `json:"nothing_to_do"`
}

// Params groups the collaborators of the compensation service.
type Params struct {
	Tx        txRunner
	Orders    orders.Repository
	Payments  payments.Repository
	Inventory StockMutator
	Ledger    ledger.Service
	Outbox    eventEmitter
	Logger    *logger.Logger
}

type service struct {
	tx        txRunner
	orders    orders.Repository
	payments  payments.Repository
	orderSM   *orders.StateMachine
	paymentSM *payments.StateMachine
	inventory StockMutator
	ledger    ledger.Service
	outbox    eventEmitter
	logg      *logger.Logger
	now       func() time.Time
}

// NewService validates the collaborators and builds the service.
func NewService(p Params) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case p.Inventory == nil:
		return nil, fmt.Errorf("stock mutator required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	orderSM, err := orders.NewStateMachine(p.Orders)
	if err != nil {
		return nil, err
	}
	paymentSM, err := payments.NewStateMachine(p.Payments)
	if err != nil {
		return nil, err
	}
	return &service{
		tx:        p.Tx,
		orders:    p.Orders,
		payments:  p.Payments,
		orderSM:   orderSM,
		paymentSM: paymentSM,
		inventory: p.Inventory,
		ledger:    p.Ledger,
		outbox:    p.Outbox,
		logg:      p.Logger,
		now:       time.Now,
	}, nil
}

// Refund puts the stock of a settled payment back and marks both the payment
// and its order REFUNDED. Everything commits in one transaction.
func (s *service) Refund(ctx context.Context, input RefundInput) (*RefundResult, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if err := input.Actor.validate(); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(input.Notes)
	actorID := input.Actor.UserID

	var result *RefundResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentRepo := s.payments.WithTx(tx)
		payment, err := paymentRepo.FindByID(ctx, input.PaymentID)
		if err != nil {
			return notFound(err, pkgerrors.CodeNotFound, "payment not found")
		}
		order, err := s.orders.WithTx(tx).LockByID(ctx, payment.OrderID)
		if err != nil {
			return notFound(err, pkgerrors.CodeOrderNotFound, "order not found")
		}
		// re-read under the order lock
		payment, err = paymentRepo.FindByID(ctx, input.PaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
		}

		switch payment.Status {
		case enums.PaymentStatusPaid:
		case enums.PaymentStatusRefunded:
			return pkgerrors.New(pkgerrors.CodeAlreadyRolledBack, "payment already refunded")
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidRefundTarget, fmt.Sprintf("payment is %s, only PAID payments can be refunded", payment.Status)).
				WithDetails(map[string]any{"payment_status": payment.Status})
		}

		ledgerSvc := s.ledger.WithTx(tx)
		if err := ensureNotRolledBack(ctx, ledgerSvc, order.ID, payment.ID); err != nil {
			return err
		}
		applied, err := s.inventory.Rollback(ctx, tx, inventory.RollbackInput{
			OrderID:   order.ID,
			PaymentID: payment.ID,
			Source:    enums.StockSourceManual,
			ActorID:   &actorID,
			Notes:     notes,
		})
		if err != nil {
			return err
		}

		units := 0
		if applied {
			restored, err := ledgerSvc.Entries(ctx, order.ID, payment.ID, enums.StockActionRollback)
			if err != nil {
				return err
			}
			for _, entry := range restored {
				if entry.ProductID != nil {
					units += entry.Quantity
				}
			}
		} else {
			// nothing was deducted; the aggregate row is the refund's ledger trace
			paymentID := payment.ID
			if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
				OrderID:   order.ID,
				PaymentID: &paymentID,
				Quantity:  0,
				Action:    enums.StockActionRollback,
				Source:    enums.StockSourceManual,
				ActorID:   &actorID,
				Notes:     refundNote(notes),
			}); err != nil {
				if errors.Is(err, ledger.ErrDuplicateEntry) {
					return pkgerrors.New(pkgerrors.CodeAlreadyRolledBack, "refund already recorded")
				}
				return err
			}
		}

		if err := s.paymentSM.Refund(ctx, tx, payment); err != nil {
			return err
		}
		if _, err := s.orderSM.Advance(ctx, tx, order, enums.OrderStatusRefunded); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.OrderRefundedEvent{
				OrderID:    order.ID,
				PaymentID:  payment.ID,
				Amount:     payment.Amount,
				RefundedBy: actorID,
				Notes:      notes,
				RefundedAt: s.now().UTC(),
				Customer:   customerOf(order),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue refund notification")
		}

		result = &RefundResult{
			OrderID:       order.ID,
			PaymentID:     payment.ID,
			OrderStatus:   order.Status,
			RestoredUnits: units,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       result.OrderID.String(),
		"payment_id":     result.PaymentID.String(),
		"actor_id":       actorID.String(),
		"restored_units": result.RestoredUnits,
	})
	s.logg.Info(logCtx, "compensation.refund.completed")
	return result, nil
}

// ManualDeduct decrements one product for an order and records who did it.
// A PAID order moves to STOCK_DEDUCTED.
func (s *service) ManualDeduct(ctx context.Context, input ManualDeductInput) (*ManualDeductResult, error) {
	if input.OrderID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and product id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if err := input.Actor.validate(); err != nil {
		return nil, err
	}
	actorID := input.Actor.UserID

	var result *ManualDeductResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).LockByID(ctx, input.OrderID)
		if err != nil {
			return notFound(err, pkgerrors.CodeOrderNotFound, "order not found")
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.Status)).
				WithDetails(map[string]any{"order_status": order.Status})
		}

		entry, err := s.inventory.DeductProduct(ctx, tx, inventory.ProductDeductInput{
			OrderID:   order.ID,
			ProductID: input.ProductID,
			Quantity:  input.Quantity,
			ActorID:   &actorID,
			Notes:     strings.TrimSpace(input.Notes),
		})
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusPaid {
			if _, err := s.orderSM.Advance(ctx, tx, order, enums.OrderStatusStockDeducted); err != nil {
				return err
			}
		}
		result = &ManualDeductResult{Entry: entry, OrderStatus: order.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   input.OrderID.String(),
		"product_id": input.ProductID.String(),
		"quantity":   input.Quantity,
		"actor_id":   actorID.String(),
	})
	s.logg.Info(logCtx, "compensation.manual_deduct.completed")
	return result, nil
}

// Rollback reverses the deduction of an (order, payment) pair without
// touching payment or order status.
func (s *service) Rollback(ctx context.Context, input RollbackInput) (*RollbackResult, error) {
	if input.OrderID == uuid.Nil || input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and payment id are required")
	}
	if err := input.Actor.validate(); err != nil {
		return nil, err
	}
	actorID := input.Actor.UserID

	var result *RollbackResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).LockByID(ctx, input.OrderID)
		if err != nil {
			return notFound(err, pkgerrors.CodeOrderNotFound, "order not found")
		}
		payment, err := s.payments.WithTx(tx).FindByID(ctx, input.PaymentID)
		if err != nil {
			return notFound(err, pkgerrors.CodeNotFound, "payment not found")
		}
		if payment.OrderID != order.ID {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to order")
		}

		ledgerSvc := s.ledger.WithTx(tx)
		if err := ensureNotRolledBack(ctx, ledgerSvc, order.ID, payment.ID); err != nil {
			return err
		}
		applied, err := s.inventory.Rollback(ctx, tx, inventory.RollbackInput{
			OrderID:   order.ID,
			PaymentID: payment.ID,
			Source:    enums.StockSourceManual,
			ActorID:   &actorID,
			Notes:     strings.TrimSpace(input.Notes),
		})
		if err != nil {
			return err
		}
		if !applied {
			result = &RollbackResult{Entries: []models.StockDeductionLog{}, NothingToDo: true}
			return nil
		}
		entries, err := ledgerSvc.Entries(ctx, order.ID, payment.ID, enums.StockActionRollback)
		if err != nil {
			return err
		}
		result = &RollbackResult{Entries: entries}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      input.OrderID.String(),
		"payment_id":    input.PaymentID.String(),
		"actor_id":      actorID.String(),
		"entries":       len(result.Entries),
		"nothing_to_do": result.NothingToDo,
	})
	s.logg.Info(logCtx, "compensation.rollback.completed")
	return result, nil
}

func ensureNotRolledBack(ctx context.Context, ledgerSvc ledger.Service, orderID, paymentID uuid.UUID) error {
	done, err := ledgerSvc.Applied(ctx, orderID, paymentID, enums.StockActionRollback)
	if err != nil {
		return err
	}
	if done {
		return pkgerrors.New(pkgerrors.CodeAlreadyRolledBack, "stock already rolled back for this payment")
	}
	return nil
}

func notFound(err error, code pkgerrors.Code, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(code, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func refundNote(notes string) string {
	if notes == "" {
		return "refund without stock restore"
	}
	return "refund without stock restore: " + notes
}

func customerOf(order *models.Order) payloads.Customer {
	return payloads.Customer{Name: order.CustomerName, Email: order.CustomerEmail, Phone: order.CustomerPhone}
}
