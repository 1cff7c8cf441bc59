package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
)

// UniqueKeyConstraint is the index that rejects a second entry for the same
// (order, payment, action, product) key.
const UniqueKeyConstraint = "ux_stock_deduction_logs_order_payment_action_product"

// Repository manages persistence for stock ledger entries. Entries are only
// ever appended.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.StockDeductionLog) error
	Exists(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) (bool, error)
	ListByKey(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) ([]models.StockDeductionLog, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.StockDeductionLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.StockDeductionLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Exists(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockDeductionLog{}).
		Where("order_id = ? AND payment_id = ? AND action = ?", orderID, paymentID, action).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByKey(ctx context.Context, orderID, paymentID uuid.UUID, action enums.StockAction) ([]models.StockDeductionLog, error) {
	var entries []models.StockDeductionLog
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND payment_id = ? AND action = ?", orderID, paymentID, action).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.StockDeductionLog, error) {
	var entries []models.StockDeductionLog
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
