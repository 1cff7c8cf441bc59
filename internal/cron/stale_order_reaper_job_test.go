package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/internal/payments"
	dbpkg "github.com/duka/supermarket-backend/pkg/db"
	"github.com/duka/supermarket-backend/pkg/db/dbtest"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/outbox"
)

func newReaper(t *testing.T, conn *gorm.DB) *StaleOrderReaperJob {
	t.Helper()
	paymentSM, err := payments.NewStateMachine(payments.NewRepository(conn))
	require.NoError(t, err)
	job, err := NewStaleOrderReaperJob(StaleOrderReaperParams{
		Logger:   testLogger(),
		DB:       dbpkg.FromConn(conn),
		Orders:   orders.NewRepository(conn),
		Payments: paymentSM,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return job
}

func TestReaperCancelsStalePendingOrders(t *testing.T) {
	conn := dbtest.Open(t)
	job := newReaper(t, conn)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	product := dbtest.SeedProduct(t, conn, "Milk 500ml", "60.00", 20)
	stale := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	dbtest.AgeOrder(t, conn, stale.ID, now.Add(-73*time.Hour))
	stalePayment := dbtest.SeedPayment(t, conn, stale, enums.PaymentStatusPending)

	fresh := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	dbtest.AgeOrder(t, conn, fresh.ID, now.Add(-71*time.Hour))

	paid := dbtest.SeedOrder(t, conn, enums.OrderStatusPaid, dbtest.Line{Product: product, Quantity: 1})
	dbtest.AgeOrder(t, conn, paid.ID, now.Add(-100*time.Hour))

	cancelled, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, cancelled)

	require.Equal(t, enums.OrderStatusCancelled, dbtest.ReloadOrder(t, conn, stale.ID).Status)
	require.Equal(t, enums.PaymentStatusFailed, dbtest.ReloadPayment(t, conn, stalePayment.ID).Status)
	require.Equal(t, enums.OrderStatusPending, dbtest.ReloadOrder(t, conn, fresh.ID).Status)
	require.Equal(t, enums.OrderStatusPaid, dbtest.ReloadOrder(t, conn, paid.ID).Status)
	require.Equal(t, 20, dbtest.ReloadProduct(t, conn, product.ID).Stock)

	var expired int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderExpired, stale.ID).
		Count(&expired).Error)
	require.EqualValues(t, 1, expired)

	// a second sweep finds nothing left to do
	cancelled, err = job.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, cancelled)
}

func TestReaperHonoursConfiguredThreshold(t *testing.T) {
	conn := dbtest.Open(t)
	job := newReaper(t, conn)
	job.staleAfter = 24 * time.Hour
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 5)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	dbtest.AgeOrder(t, conn, order.ID, now.Add(-25*time.Hour))

	cancelled, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, cancelled)
}

func TestReaperSkipsOrdersSettledAfterScan(t *testing.T) {
	conn := dbtest.Open(t)
	job := newReaper(t, conn)
	now := time.Now().UTC()
	job.now = func() time.Time { return now }

	product := dbtest.SeedProduct(t, conn, "Eggs tray", "420.00", 3)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	dbtest.AgeOrder(t, conn, order.ID, now.Add(-80*time.Hour))
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", order.ID).
		UpdateColumn("status", enums.OrderStatusPaid).Error)

	changed, err := job.expire(context.Background(), order.ID, now.Add(-72*time.Hour))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, enums.OrderStatusPaid, dbtest.ReloadOrder(t, conn, order.ID).Status)
}
