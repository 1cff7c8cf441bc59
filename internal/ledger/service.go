package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/duka/supermarket-backend/pkg/db"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
)

// ErrDuplicateEntry reports that another writer already recorded the same key.
var ErrDuplicateEntry = errors.New("ledger entry already recorded")

// Service records and queries stock ledger entries.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordEntryInput) (*models.StockDeductionLog, error)
	Applied(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) (bool, error)
	Entries(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) ([]models.StockDeductionLog, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.StockDeductionLog, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a ledger entry requires.
// ProductID is nil only for aggregate refund entries.
type RecordEntryInput struct {
	OrderID   uuid.UUID         `json:"order_id"`
	PaymentID *uuid.UUID        `json:"payment_id,omitempty"`
	ProductID *uuid.UUID        `json:"product_id,omitempty"`
	Quantity  int               `json:"quantity"`
	Action    enums.StockAction `json:"action"`
	Source    enums.StockSource `json:"source"`
	ActorID   *uuid.UUID        `json:"actor_id,omitempty"`
	Notes     string            `json:"notes,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Record(ctx context.Context, input RecordEntryInput) (*models.StockDeductionLog, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid stock action %q", input.Action)
	}
	if !input.Source.IsValid() {
		return nil, fmt.Errorf("invalid stock source %q", input.Source)
	}
	if input.Quantity < 0 {
		return nil, fmt.Errorf("quantity must be non-negative")
	}
	if input.ProductID == nil && input.Action != enums.StockActionRollback {
		return nil, fmt.Errorf("product id is required for %s entries", input.Action)
	}
	if input.ProductID != nil && input.Quantity == 0 {
		return nil, fmt.Errorf("quantity must be positive for product entries")
	}

	entry := &models.StockDeductionLog{
		OrderID:   input.OrderID,
		PaymentID: input.PaymentID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Action:    input.Action,
		Source:    input.Source,
		ActorID:   input.ActorID,
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		entry.Notes = &notes
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		if dbpkg.IsUniqueViolation(err, UniqueKeyConstraint) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateEntry, err)
		}
		return nil, err
	}
	return entry, nil
}

func (s *service) Applied(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) (bool, error) {
	if orderID == uuid.Nil || paymentID == uuid.Nil {
		return false, fmt.Errorf("order id and payment id are required")
	}
	if !action.IsValid() {
		return false, fmt.Errorf("invalid stock action %q", action)
	}
	return s.repo.Exists(ctx, orderID, paymentID, action)
}

func (s *service) Entries(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) ([]models.StockDeductionLog, error) {
	if orderID == uuid.Nil || paymentID == uuid.Nil {
		return nil, fmt.Errorf("order id and payment id are required")
	}
	return s.repo.ListByKey(ctx, orderID, paymentID, action)
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.StockDeductionLog, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
