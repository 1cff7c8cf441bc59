package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/dbtest"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

func newMachine(t *testing.T, conn *gorm.DB) *StateMachine {
	t.Helper()
	m, err := NewStateMachine(NewRepository(conn))
	require.NoError(t, err)
	return m
}

func seedPending(t *testing.T, conn *gorm.DB) models.Payment {
	t.Helper()
	product := dbtest.SeedProduct(t, conn, "Sugar 1kg", "200.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	return dbtest.SeedPayment(t, conn, order, enums.PaymentStatusPending)
}

func TestSettleSuccessRecordsReceipt(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	payment := seedPending(t, conn)
	paidAt := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	changed, err := m.Settle(context.Background(), conn, &payment, GatewayResult{
		ResultCode:      0,
		ReceiptNo:       "QKT1ABC2DE",
		PhoneNumber:     "254708374149",
		TransactionDate: paidAt,
	})
	require.NoError(t, err)
	require.True(t, changed)

	stored := dbtest.ReloadPayment(t, conn, payment.ID)
	require.Equal(t, enums.PaymentStatusPaid, stored.Status)
	require.NotNil(t, stored.ReceiptNo)
	require.Equal(t, "QKT1ABC2DE", *stored.ReceiptNo)
	require.NotNil(t, stored.TransactionDate)
	require.True(t, paidAt.Equal(stored.TransactionDate.UTC()))

	changed, err = m.Settle(context.Background(), conn, &stored, GatewayResult{ResultCode: 0, ReceiptNo: "QKT1ABC2DE"})
	require.NoError(t, err)
	require.False(t, changed)
}

func TestSettleFailure(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	payment := seedPending(t, conn)

	changed, err := m.Settle(context.Background(), conn, &payment, GatewayResult{ResultCode: 1032, ResultDesc: "Request cancelled by user"})
	require.NoError(t, err)
	require.True(t, changed)

	stored := dbtest.ReloadPayment(t, conn, payment.ID)
	require.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.Nil(t, stored.ReceiptNo)
}

func TestSettleTerminalRejectsDifferentOutcome(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	payment := seedPending(t, conn)

	_, err := m.Settle(context.Background(), conn, &payment, GatewayResult{ResultCode: 0, ReceiptNo: "R1"})
	require.NoError(t, err)

	_, err = m.Settle(context.Background(), conn, &payment, GatewayResult{ResultCode: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Equal(t, enums.PaymentStatusPaid, dbtest.ReloadPayment(t, conn, payment.ID).Status)
}

func TestSettleDetectsConcurrentWriter(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	payment := seedPending(t, conn)
	stale := payment

	_, err := m.Settle(context.Background(), conn, &payment, GatewayResult{ResultCode: 0, ReceiptNo: "R1"})
	require.NoError(t, err)

	_, err = m.Settle(context.Background(), conn, &stale, GatewayResult{ResultCode: 0, ReceiptNo: "R2"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, "R1", *dbtest.ReloadPayment(t, conn, payment.ID).ReceiptNo)
}

func TestRefundRequiresPaid(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	payment := seedPending(t, conn)

	err := m.Refund(context.Background(), conn, &payment)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = m.Settle(context.Background(), conn, &payment, GatewayResult{ResultCode: 0, ReceiptNo: "R1"})
	require.NoError(t, err)
	require.NoError(t, m.Refund(context.Background(), conn, &payment))
	require.Equal(t, enums.PaymentStatusRefunded, dbtest.ReloadPayment(t, conn, payment.ID).Status)

	err = m.Refund(context.Background(), conn, &payment)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestMarkFailedOnlyFromPending(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	payment := seedPending(t, conn)

	changed, err := m.MarkFailed(context.Background(), conn, &payment)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = m.MarkFailed(context.Background(), conn, &payment)
	require.NoError(t, err)
	require.False(t, changed)

	paid := seedPending(t, conn)
	_, err = m.Settle(context.Background(), conn, &paid, GatewayResult{ResultCode: 0, ReceiptNo: "R9"})
	require.NoError(t, err)
	_, err = m.MarkFailed(context.Background(), conn, &paid)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestFailPendingLeavesSettledAttempts(t *testing.T) {
	conn := dbtest.Open(t)
	m := newMachine(t, conn)
	product := dbtest.SeedProduct(t, conn, "Rice 2kg", "300.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	first := dbtest.SeedPayment(t, conn, order, enums.PaymentStatusPending)
	second := dbtest.SeedPayment(t, conn, order, enums.PaymentStatusPending)
	paid := dbtest.SeedPayment(t, conn, order, enums.PaymentStatusPaid)

	count, err := m.FailPending(context.Background(), conn, order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	for _, p := range []models.Payment{first, second} {
		require.Equal(t, enums.PaymentStatusFailed, dbtest.ReloadPayment(t, conn, p.ID).Status)
	}
	require.Equal(t, enums.PaymentStatusPaid, dbtest.ReloadPayment(t, conn, paid.ID).Status)
}
