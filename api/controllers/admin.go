package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/duka/supermarket-backend/api/middleware"
	"github.com/duka/supermarket-backend/api/responses"
	"github.com/duka/supermarket-backend/api/validators"
	"github.com/duka/supermarket-backend/internal/compensation"
	internalorders "github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
)

const (
	defaultDLQLimit = 50
	maxDLQLimit     = 200
)

// LedgerHistory is satisfied by ledger.Service.
type LedgerHistory interface {
	History(ctx context.Context, orderID uuid.UUID) ([]models.StockDeductionLog, error)
}

// DLQLister is satisfied by *outbox.DLQRepository.
type DLQLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

type refundRequest struct {
	Notes string `json:"notes,omitempty"`
}

type stockDeductionRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	Notes     string    `json:"notes,omitempty"`
}

type stockRollbackRequest struct {
	PaymentID uuid.UUID `json:"payment_id" validate:"required"`
	Notes     string    `json:"notes,omitempty"`
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func actorFrom(r *http.Request) compensation.Actor {
	return compensation.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}

// AdminRefund refunds a settled payment and restores its stock.
func AdminRefund(svc compensation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Refund(r.Context(), compensation.RefundInput{
			PaymentID: paymentID,
			Actor:     actorFrom(r),
			Notes:     validators.SanitizeString(body.Notes, validators.MaxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminStockDeduction records a manual stock decrement against an order.
func AdminStockDeduction(svc compensation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body stockDeductionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ManualDeduct(r.Context(), compensation.ManualDeductInput{
			OrderID:   orderID,
			ProductID: body.ProductID,
			Quantity:  body.Quantity,
			Notes:     validators.SanitizeString(body.Notes, validators.MaxNotesLength),
			Actor:     actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"entry":        newLedgerEntryView(*result.Entry),
			"order_status": result.OrderStatus,
		})
	}
}

// AdminStockRollback reverses the automatic deduction of one payment.
func AdminStockRollback(svc compensation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "compensation service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body stockRollbackRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Rollback(r.Context(), compensation.RollbackInput{
			OrderID:   orderID,
			PaymentID: body.PaymentID,
			Notes:     validators.SanitizeString(body.Notes, validators.MaxNotesLength),
			Actor:     actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.NothingToDo {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"entries":       newLedgerViews(result.Entries),
			"nothing_to_do": result.NothingToDo,
		})
	}
}

// AdminStockLedger lists every ledger row of an order, oldest first.
func AdminStockLedger(history LedgerHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := history.History(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLedgerViews(entries))
	}
}

// AdminOrderStatus moves an order along fulfilment.
func AdminOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body orderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: orderID,
			Status:  status,
			ActorID: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// AdminOutboxDLQ lists dead-lettered events, newest first.
func AdminOutboxDLQ(repo DLQLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq repository unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultDLQLimit, 1, maxDLQLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := repo.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dlq"))
			return
		}
		responses.WriteSuccess(w, newDLQViews(entries))
	}
}
