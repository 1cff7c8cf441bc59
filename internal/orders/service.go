package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ProductLookup resolves catalog prices when an order is placed.
type ProductLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// PaymentFailer closes the open payment attempts of an order.
type PaymentFailer interface {
	FailPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

// Service defines order operations exposed to customers and operators.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	machine  *StateMachine
	products ProductLookup
	payments PaymentFailer
}

// CreateOrderItem is one requested product line.
type CreateOrderItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderInput captures a customer checkout. Status is always PENDING.
type CreateOrderInput struct {
	CustomerID    *uuid.UUID        `json:"customer_id,omitempty"`
	CustomerName  string            `json:"customer_name" validate:"required"`
	CustomerEmail *string           `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerPhone *string           `json:"customer_phone,omitempty"`
	Items         []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

// UpdateStatusInput is an operator-driven fulfilment transition.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	ActorID uuid.UUID
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, products ProductLookup, payments PaymentFailer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment failer required")
	}
	machine, err := NewStateMachine(repo)
	if err != nil {
		return nil, err
	}
	return &service{
		repo:     repo,
		tx:       tx,
		machine:  machine,
		products: products,
		payments: payments,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	order := &models.Order{
		CustomerID:    input.CustomerID,
		CustomerName:  name,
		CustomerEmail: input.CustomerEmail,
		CustomerPhone: input.CustomerPhone,
		Status:        enums.OrderStatusPending,
		TotalPrice:    decimal.Zero,
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each item needs a product and a positive quantity")
		}
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		line := models.OrderItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		}
		order.TotalPrice = order.TotalPrice.Add(line.Subtotal())
		order.Items = append(order.Items, line)
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).Create(ctx, order)
		return err
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// Cancel closes a PENDING order on the customer's request and fails its
// open payment attempts. Cancelling a cancelled order is a no-op.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		changed, err := s.machine.Advance(ctx, tx, order, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if changed {
			if _, err := s.payments.FailPending(ctx, tx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail pending payments")
			}
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus applies an operator fulfilment step such as SHIPPED or
// DELIVERED. Payment-driven states are rejected here.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	switch input.Status {
	case enums.OrderStatusShipped, enums.OrderStatusDelivered:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only SHIPPED or DELIVERED can be set by operators")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).LockByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if _, err := s.machine.Advance(ctx, tx, order, input.Status); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
