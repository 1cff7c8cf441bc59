package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/mpesa"
)

const (
	initiateRateLimit  int64 = 5
	initiateRateWindow       = 10 * time.Minute

	// StatusNotFound is reported when an order has no payment attempt yet.
	StatusNotFound = "NOT_FOUND"
)

// Gateway starts an STK push. *mpesa.Client satisfies it.
type Gateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// RateLimiter bounds how often a single order can trigger a prompt.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// OrderLookup loads orders for initiation and status polling.
type OrderLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Service defines the customer-facing payment operations.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Status(ctx context.Context, orderID uuid.UUID) (*StatusView, error)
}

// ServiceParams groups service dependencies.
type ServiceParams struct {
	Repo         Repository
	Orders       OrderLookup
	Gateway      Gateway
	Limiter      RateLimiter
	Logger       *logger.Logger
	BaseURL      string
	CallbackPath string
}

type service struct {
	repo         Repository
	orders       OrderLookup
	gateway      Gateway
	limiter      RateLimiter
	logg         *logger.Logger
	baseURL      string
	callbackPath string
}

// InitiateInput requests an STK push for an order.
type InitiateInput struct {
	OrderID     uuid.UUID
	PhoneNumber string `json:"phone_number" validate:"required"`
}

// InitiateResult is returned once the gateway accepted the prompt.
type InitiateResult struct {
	PaymentID         uuid.UUID       `json:"payment_id"`
	OrderID           uuid.UUID       `json:"order_id"`
	Amount            decimal.Decimal `json:"amount"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	CustomerMessage   string          `json:"customer_message,omitempty"`
}

// StatusView is the polling summary for an order.
type StatusView struct {
	OrderID       uuid.UUID         `json:"order_id"`
	PaymentID     *uuid.UUID        `json:"payment_id,omitempty"`
	PaymentStatus string            `json:"payment_status"`
	OrderStatus   enums.OrderStatus `json:"order_status"`
	ReceiptNo     *string           `json:"receipt_no,omitempty"`
	IsPaid        bool              `json:"is_paid"`
	IsFailed      bool              `json:"is_failed"`
}

// NewService builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order lookup required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if strings.TrimSpace(params.BaseURL) == "" {
		return nil, fmt.Errorf("base url required")
	}
	return &service{
		repo:         params.Repo,
		orders:       params.Orders,
		gateway:      params.Gateway,
		limiter:      params.Limiter,
		logg:         params.Logger,
		baseURL:      strings.TrimRight(strings.TrimSpace(params.BaseURL), "/"),
		callbackPath: params.CallbackPath,
	}, nil
}

// Initiate prompts the payer and records a PENDING payment carrying the
// CheckoutRequestID the callback will echo. The amount is the order total in
// whole shillings.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	phone, err := mpesa.NormalizePhone(input.PhoneNumber)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}

	amount := order.TotalPrice.IntPart()
	if amount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be at least 1 shilling")
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.FixedWindowAllow(ctx, "stk_push:"+order.ID.String(), initiateRateLimit, initiateRateWindow)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check initiation rate limit")
		}
		if !allowed {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "too many payment attempts, try again later")
		}
	}

	resp, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: order.ID.String(),
		TransactionDesc:  "Order payment",
		CallbackURL:      s.callbackURL(order.ID),
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "stk push initiation failed", err)
		}
		return nil, err
	}

	checkoutID := resp.CheckoutRequestID
	payment := &models.Payment{
		OrderID:           order.ID,
		Amount:            decimal.NewFromInt(amount),
		Status:            enums.PaymentStatusPending,
		CheckoutRequestID: &checkoutID,
		PhoneNumber:       &phone,
	}
	if _, err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":            order.ID.String(),
			"payment_id":          payment.ID.String(),
			"checkout_request_id": checkoutID,
		})
		s.logg.Info(logCtx, "stk push initiated")
	}

	return &InitiateResult{
		PaymentID:         payment.ID,
		OrderID:           order.ID,
		Amount:            payment.Amount,
		CheckoutRequestID: checkoutID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// Status reports the latest payment for the order alongside the order status.
func (s *service) Status(ctx context.Context, orderID uuid.UUID) (*StatusView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		PaymentStatus: StatusNotFound,
	}
	payment, err := s.repo.LatestForOrder(ctx, order.ID)
	switch {
	case err == nil:
		view.PaymentID = &payment.ID
		view.PaymentStatus = string(payment.Status)
		view.ReceiptNo = payment.ReceiptNo
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest payment")
	}

	view.IsPaid = view.PaymentStatus == string(enums.PaymentStatusPaid) || order.Status.IsPostPayment()
	switch {
	case view.PaymentStatus == string(enums.PaymentStatusFailed):
		view.IsFailed = true
	case order.Status == enums.OrderStatusFailed, order.Status == enums.OrderStatusCancelled, order.Status == enums.OrderStatusRefunded:
		view.IsFailed = true
	}
	return view, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) callbackURL(orderID uuid.UUID) string {
	q := url.Values{}
	q.Set("order_id", orderID.String())
	return s.baseURL + s.callbackPath + "?" + q.Encode()
}
