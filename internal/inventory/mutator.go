// Package inventory applies and reverses order stock changes. Every change
// is paired with a ledger entry inside the caller's transaction.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/internal/ledger"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

// Mutator applies stock changes for orders exactly once per ledger key.
type Mutator struct {
	products ProductRepository
	ledger   ledger.Service
}

// DeductInput names the order and payment whose items should be deducted.
// Order.Items must be loaded.
type DeductInput struct {
	Order     *models.Order
	PaymentID uuid.UUID
	Source    enums.StockSource
	ActorID   *uuid.UUID
	Notes     string
}

// RollbackInput names the order and payment whose deduction is reversed.
type RollbackInput struct {
	OrderID   uuid.UUID
	PaymentID uuid.UUID
	Source    enums.StockSource
	ActorID   *uuid.UUID
	Notes     string
}

// ProductDeductInput describes a single operator decrement.
type ProductDeductInput struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	ActorID   *uuid.UUID
	Notes     string
}

// NewMutator wires the stock mutator.
func NewMutator(products ProductRepository, ledgerSvc ledger.Service) (*Mutator, error) {
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &Mutator{products: products, ledger: ledgerSvc}, nil
}

// Deduct decrements stock for every order item and appends one DEDUCT entry
// per product. It returns false when the ledger already holds a deduction for
// the (order, payment) pair, including when a concurrent writer wins the
// unique index. Any shortfall aborts the whole batch with InsufficientStock.
func (m *Mutator) Deduct(ctx context.Context, tx *gorm.DB, input DeductInput) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	if input.Order == nil || input.Order.ID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if input.PaymentID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	source := input.Source
	if source == "" {
		source = enums.StockSourceAuto
	}

	lines := aggregateItems(input.Order.Items)
	if len(lines) == 0 {
		return false, nil
	}

	applied := false
	err := tx.Transaction(func(sp *gorm.DB) error {
		ledgerSvc := m.ledger.WithTx(sp)
		done, err := ledgerSvc.Applied(ctx, input.Order.ID, input.PaymentID, enums.StockActionDeduct)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		products := m.products.WithTx(sp)
		paymentID := input.PaymentID
		for _, line := range lines {
			ok, err := products.Decrement(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return insufficientStock(ctx, products, line.ProductID, line.Quantity)
			}
			productID := line.ProductID
			if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
				OrderID:   input.Order.ID,
				PaymentID: &paymentID,
				ProductID: &productID,
				Quantity:  line.Quantity,
				Action:    enums.StockActionDeduct,
				Source:    source,
				ActorID:   input.ActorID,
				Notes:     input.Notes,
			}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// Rollback restores every quantity recorded by the DEDUCT entries of the
// (order, payment) pair and appends matching ROLLBACK entries. It returns
// false when a rollback was already recorded for the pair or when the pair
// has nothing deducted to restore.
func (m *Mutator) Rollback(ctx context.Context, tx *gorm.DB, input RollbackInput) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	if input.OrderID == uuid.Nil || input.PaymentID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id and payment id are required")
	}
	source := input.Source
	if source == "" {
		source = enums.StockSourceManual
	}

	applied := false
	err := tx.Transaction(func(sp *gorm.DB) error {
		ledgerSvc := m.ledger.WithTx(sp)
		done, err := ledgerSvc.Applied(ctx, input.OrderID, input.PaymentID, enums.StockActionRollback)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		deductions, err := ledgerSvc.Entries(ctx, input.OrderID, input.PaymentID, enums.StockActionDeduct)
		if err != nil {
			return err
		}

		restorable := deductions[:0]
		for _, entry := range deductions {
			if entry.ProductID != nil && entry.Quantity > 0 {
				restorable = append(restorable, entry)
			}
		}
		if len(restorable) == 0 {
			return nil
		}

		products := m.products.WithTx(sp)
		paymentID := input.PaymentID
		for _, entry := range restorable {
			ok, err := products.Increment(ctx, *entry.ProductID, entry.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": entry.ProductID.String()})
			}
			productID := *entry.ProductID
			if _, err := ledgerSvc.Record(ctx, ledger.RecordEntryInput{
				OrderID:   input.OrderID,
				PaymentID: &paymentID,
				ProductID: &productID,
				Quantity:  entry.Quantity,
				Action:    enums.StockActionRollback,
				Source:    source,
				ActorID:   input.ActorID,
				Notes:     input.Notes,
			}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return false, nil
		}
		return false, err
	}
	return applied, nil
}

// DeductProduct decrements one product on behalf of an operator. Each call is
// its own audited action so there is no idempotency gate.
func (m *Mutator) DeductProduct(ctx context.Context, tx *gorm.DB, input ProductDeductInput) (*models.StockDeductionLog, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.OrderID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and product id are required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	products := m.products.WithTx(tx)
	ok, err := products.Decrement(ctx, input.ProductID, input.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, insufficientStock(ctx, products, input.ProductID, input.Quantity)
	}

	productID := input.ProductID
	return m.ledger.WithTx(tx).Record(ctx, ledger.RecordEntryInput{
		OrderID:   input.OrderID,
		ProductID: &productID,
		Quantity:  input.Quantity,
		Action:    enums.StockActionDeduct,
		Source:    enums.StockSourceManual,
		ActorID:   input.ActorID,
		Notes:     input.Notes,
	})
}

type line struct {
	ProductID uuid.UUID
	Quantity  int
}

// aggregateItems sums quantities per product and sorts by product id so
// concurrent batches lock product rows in the same order.
func aggregateItems(items []models.OrderItem) []line {
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		totals[item.ProductID] += item.Quantity
	}
	lines := make([]line, 0, len(totals))
	for productID, qty := range totals {
		lines = append(lines, line{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
	return lines
}

func insufficientStock(ctx context.Context, products ProductRepository, productID uuid.UUID, requested int) error {
	product, err := products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID.String()})
		}
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", product.Name)).
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  requested,
			"available":  product.Stock,
		})
}
