// Package mpesawebhook reconciles asynchronous M-Pesa STK push results with
// orders, payments and stock.
package mpesawebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/internal/inventory"
	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/internal/payments"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/metrics"
	"github.com/duka/supermarket-backend/pkg/outbox"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
)

const fallbackScanLimit = 50

// Outcome classifies a reconciled callback.
type Outcome string

const (
	OutcomeProcessed     Outcome = "processed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeOrderNotFound Outcome = "order_not_found"
	// OutcomeAnomaly marks a callback that contradicts a recorded terminal
	// outcome. It is acknowledged and left for an operator.
	OutcomeAnomaly Outcome = "anomaly"
)

// Result is the reconciliation summary for one callback.
type Result struct {
	Outcome       Outcome
	OrderID       uuid.UUID
	PaymentID     uuid.UUID
	StockDeducted bool
}

type txRunner interface {
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockDeducter interface {
	Deduct(ctx context.Context, tx *gorm.DB, input inventory.DeductInput) (bool, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReconcilerParams groups reconciler dependencies.
type ReconcilerParams struct {
	Tx                  txRunner
	Orders              orders.Repository
	Payments            payments.Repository
	Inventory           stockDeducter
	Outbox              eventEmitter
	Logger              *logger.Logger
	Metrics             *metrics.CallbackMetrics
	AllowAmountFallback bool
}

// Reconciler maps gateway callbacks onto payment, order and stock state
// exactly once.
type Reconciler struct {
	tx             txRunner
	orders         orders.Repository
	orderMachine   *orders.StateMachine
	payments       payments.Repository
	paymentMachine *payments.StateMachine
	inventory      stockDeducter
	outbox         eventEmitter
	logg           *logger.Logger
	metrics        *metrics.CallbackMetrics
	amountFallback bool
	now            func() time.Time
}

// NewReconciler validates dependencies and builds a Reconciler.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory mutator required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	orderMachine, err := orders.NewStateMachine(params.Orders)
	if err != nil {
		return nil, err
	}
	paymentMachine, err := payments.NewStateMachine(params.Payments)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		tx:             params.Tx,
		orders:         params.Orders,
		orderMachine:   orderMachine,
		payments:       params.Payments,
		paymentMachine: paymentMachine,
		inventory:      params.Inventory,
		outbox:         params.Outbox,
		logg:           params.Logger,
		metrics:        params.Metrics,
		amountFallback: params.AllowAmountFallback,
		now:            time.Now,
	}, nil
}

// Handle applies one parsed callback. Idempotent replays and unresolvable
// callbacks are results, not errors. Any returned error means nothing was
// committed and the gateway should retry.
func (r *Reconciler) Handle(ctx context.Context, cb *Callback) (result *Result, err error) {
	started := r.now()
	defer func() {
		outcome := "error"
		if err == nil && result != nil {
			outcome = string(result.Outcome)
		}
		r.metrics.Observe(outcome, r.now().Sub(started))
	}()

	if cb == nil {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedCallback, "callback is required")
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
	})

	order, err := r.resolveOrder(ctx, cb)
	if err != nil {
		return nil, err
	}
	if order == nil {
		r.logg.Warn(ctx, "mpesa callback could not be matched to an order")
		return &Result{Outcome: OutcomeOrderNotFound}, nil
	}
	ctx = r.logg.WithOrderID(ctx, order.ID.String())

	payment, err := r.findPayment(ctx, r.payments, order.ID, cb.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	if payment != nil && alreadySettled(payment, order) {
		r.logg.Info(r.logg.WithPaymentID(ctx, payment.ID.String()), "duplicate mpesa callback ignored")
		return &Result{Outcome: OutcomeDuplicate, OrderID: order.ID, PaymentID: payment.ID}, nil
	}

	err = r.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		res, err := r.settle(ctx, tx, order.ID, cb)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
			r.logg.Error(ctx, "mpesa callback contradicts recorded state", err)
			return &Result{Outcome: OutcomeAnomaly, OrderID: order.ID}, nil
		}
		r.logg.Error(ctx, "mpesa callback reconciliation failed", err)
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "settle callback")
		}
		return nil, err
	}

	logCtx := r.logg.WithPaymentID(ctx, result.PaymentID.String())
	switch {
	case result.Outcome == OutcomeDuplicate:
		r.logg.Info(logCtx, "duplicate mpesa callback ignored")
	case cb.Succeeded():
		r.logg.Info(r.logg.WithField(logCtx, "stock_deducted", result.StockDeducted), "mpesa payment settled")
	default:
		r.logg.Info(logCtx, "mpesa payment failed")
	}
	return result, nil
}

// settle runs inside one transaction with the order row locked. Everything
// read before the lock is re-read here.
func (r *Reconciler) settle(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, cb *Callback) (*Result, error) {
	order, err := r.orders.WithTx(tx).LockByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "lock order")
	}

	paymentRepo := r.payments.WithTx(tx)
	payment, err := r.findPayment(ctx, paymentRepo, order.ID, cb.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		payment, err = r.createPayment(ctx, paymentRepo, order, cb)
		if err != nil {
			return nil, err
		}
	}
	result := &Result{Outcome: OutcomeProcessed, OrderID: order.ID, PaymentID: payment.ID}
	if alreadySettled(payment, order) {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	changed, err := r.paymentMachine.Settle(ctx, tx, payment, payments.GatewayResult{
		ResultCode:      cb.ResultCode,
		ResultDesc:      cb.ResultDesc,
		ReceiptNo:       cb.ReceiptNo,
		PhoneNumber:     cb.PhoneNumber,
		TransactionDate: cb.TransactionDate,
	})
	if err != nil {
		return nil, err
	}

	if !cb.Succeeded() {
		if order.Status == enums.OrderStatusPending {
			if _, err := r.orderMachine.Advance(ctx, tx, order, enums.OrderStatusCancelled); err != nil {
				return nil, err
			}
		}
		if !changed {
			result.Outcome = OutcomeDuplicate
			return result, nil
		}
		return result, r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentFailedEvent{
				OrderID:    order.ID,
				PaymentID:  payment.ID,
				Amount:     payment.Amount,
				ResultCode: cb.ResultCode,
				ResultDesc: cb.ResultDesc,
				Customer:   customerOf(order),
			},
		})
	}

	if !order.Status.IsPostPayment() {
		if _, err := r.orderMachine.Advance(ctx, tx, order, enums.OrderStatusPaid); err != nil {
			return nil, err
		}
	}

	deducted, err := r.inventory.Deduct(ctx, tx, inventory.DeductInput{
		Order:     order,
		PaymentID: payment.ID,
		Source:    enums.StockSourceAuto,
		Notes:     fmt.Sprintf("mpesa receipt %s", cb.ReceiptNo),
	})
	switch {
	case err == nil:
		result.StockDeducted = deducted
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		r.logg.Warn(r.logg.WithField(ctx, "shortfall", pkgerrors.As(err).Details()), "stock deduction skipped, order left PAID for manual resolution")
	default:
		return nil, err
	}

	paidAt := r.now().UTC()
	if payment.TransactionDate != nil {
		paidAt = payment.TransactionDate.UTC()
	}
	var payerPhone *string
	if cb.PhoneNumber != "" {
		phone := cb.PhoneNumber
		payerPhone = &phone
	}
	amount := payment.Amount
	if cb.Amount != nil {
		amount = *cb.Amount
	}
	err = r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentConfirmedEvent{
			OrderID:       order.ID,
			PaymentID:     payment.ID,
			Amount:        amount,
			ReceiptNo:     cb.ReceiptNo,
			PayerPhone:    payerPhone,
			PaidAt:        paidAt,
			StockDeducted: result.StockDeducted,
			Customer:      customerOf(order),
		},
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveOrder tries the order token, then the CheckoutRequestID recorded at
// initiation, then (when enabled) the newest PENDING payment with the same
// amount. The amount match is logged as weak.
func (r *Reconciler) resolveOrder(ctx context.Context, cb *Callback) (*models.Order, error) {
	if cb.OrderID != nil {
		order, err := r.loadOrder(ctx, *cb.OrderID)
		if err != nil || order != nil {
			return order, err
		}
	}

	if cb.CheckoutRequestID != "" {
		payment, err := r.payments.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		switch {
		case err == nil:
			return r.loadOrder(ctx, payment.OrderID)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "find payment by checkout request")
		}
	}

	// an explicit token that resolves to nothing is reported, not guessed
	if cb.OrderID != nil || !r.amountFallback || cb.Amount == nil {
		return nil, nil
	}
	pending, err := r.payments.RecentPending(ctx, fallbackScanLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "list pending payments")
	}
	for _, candidate := range pending {
		if candidate.Amount.Equal(*cb.Amount) {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"order_id":   candidate.OrderID.String(),
				"payment_id": candidate.ID.String(),
				"amount":     cb.Amount.String(),
			}), "mpesa callback matched by amount only")
			return r.loadOrder(ctx, candidate.OrderID)
		}
	}
	return nil, nil
}

func (r *Reconciler) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := r.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "load order")
	}
	return order, nil
}

// findPayment prefers the attempt the callback names and otherwise the
// latest attempt for the order. It returns nil when the order has none.
func (r *Reconciler) findPayment(ctx context.Context, repo payments.Repository, orderID uuid.UUID, checkoutRequestID string) (*models.Payment, error) {
	if checkoutRequestID != "" {
		payment, err := repo.FindByCheckoutRequestID(ctx, checkoutRequestID)
		switch {
		case err == nil && payment.OrderID == orderID:
			return payment, nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "find payment by checkout request")
		}
	}
	payment, err := repo.LatestForOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "load latest payment")
	}
	return payment, nil
}

func (r *Reconciler) createPayment(ctx context.Context, repo payments.Repository, order *models.Order, cb *Callback) (*models.Payment, error) {
	payment := &models.Payment{
		OrderID: order.ID,
		Amount:  order.TotalPrice,
		Status:  enums.PaymentStatusPending,
	}
	if cb.Amount != nil {
		payment.Amount = *cb.Amount
	}
	if cb.CheckoutRequestID != "" {
		checkoutID := cb.CheckoutRequestID
		payment.CheckoutRequestID = &checkoutID
	}
	if _, err := repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, err, "create payment")
	}
	r.logg.Info(r.logg.WithPaymentID(ctx, payment.ID.String()), "payment created from mpesa callback")
	return payment, nil
}

func alreadySettled(payment *models.Payment, order *models.Order) bool {
	return payment.Status == enums.PaymentStatusPaid && order.Status.IsPostPayment()
}

func customerOf(order *models.Order) payloads.Customer {
	return payloads.Customer{
		Name:  order.CustomerName,
		Email: order.CustomerEmail,
		Phone: order.CustomerPhone,
	}
}
