package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
)

// Line describes one order item to seed.
type Line struct {
	Product  models.Product
	Quantity int
}

// SeedProduct inserts a product with the given price and stock.
func SeedProduct(t *testing.T, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:  name,
		SKU:   "SKU-" + uuid.NewString()[:8],
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

// SeedOrder inserts an order in the given status with its items; the total
// is the sum of the item subtotals.
func SeedOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, lines ...Line) models.Order {
	t.Helper()
	email := "wanjiku@example.com"
	phone := "254708374149"
	order := models.Order{
		CustomerName:  "Wanjiku",
		CustomerEmail: &email,
		CustomerPhone: &phone,
		Status:        status,
		TotalPrice:    decimal.Zero,
	}
	for _, line := range lines {
		item := models.OrderItem{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		}
		order.TotalPrice = order.TotalPrice.Add(item.Subtotal())
		order.Items = append(order.Items, item)
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

// AgeOrder rewrites the creation timestamp of an order.
func AgeOrder(t *testing.T, db *gorm.DB, orderID uuid.UUID, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", orderID).
		UpdateColumn("created_at", createdAt.UTC()).Error)
}

// SeedPayment inserts a payment for the order with the order total as amount.
func SeedPayment(t *testing.T, db *gorm.DB, order models.Order, status enums.PaymentStatus) models.Payment {
	t.Helper()
	payment := models.Payment{
		OrderID: order.ID,
		Amount:  order.TotalPrice,
		Status:  status,
	}
	require.NoError(t, db.Create(&payment).Error)
	return payment
}

// ReloadProduct returns the current stored state of a product.
func ReloadProduct(t *testing.T, db *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", id).Error)
	return product
}

// ReloadOrder returns the current stored state of an order.
func ReloadOrder(t *testing.T, db *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.Preload("Items").First(&order, "id = ?", id).Error)
	return order
}

// ReloadPayment returns the current stored state of a payment.
func ReloadPayment(t *testing.T, db *gorm.DB, id uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, db.First(&payment, "id = ?", id).Error)
	return payment
}

// CountLedger counts ledger rows for the order with the given action.
func CountLedger(t *testing.T, db *gorm.DB, orderID uuid.UUID, action enums.StockAction) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.StockDeductionLog{}).
		Where("order_id = ? AND action = ?", orderID, action).
		Count(&count).Error)
	return count
}
