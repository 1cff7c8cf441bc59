package payments

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/pkg/db/dbtest"
	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/mpesa"
)

type fakeGateway struct {
	requests []mpesa.STKPushRequest
	err      error
}

func (f *fakeGateway) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &mpesa.STKPushResponse{
		CheckoutRequestID: "ws_CO_" + req.AccountReference[:8],
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

type fakeLimiter struct {
	allow bool
	calls int
}

func (f *fakeLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	f.calls++
	return f.allow, int64(f.calls), nil
}

func newTestService(t *testing.T, gateway Gateway, limiter RateLimiter) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	params := ServiceParams{
		Repo:         NewRepository(conn),
		Orders:       orders.NewRepository(conn),
		Gateway:      gateway,
		BaseURL:      "https://shop.example.co.ke/",
		CallbackPath: "/api/v1/payments/mpesa/callback",
	}
	if limiter != nil {
		params.Limiter = limiter
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc, conn
}

func TestInitiateCreatesPendingPayment(t *testing.T) {
	gateway := &fakeGateway{}
	svc, conn := newTestService(t, gateway, &fakeLimiter{allow: true})
	product := dbtest.SeedProduct(t, conn, "Cooking oil 1L", "349.90", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})

	result, err := svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, PhoneNumber: "0708374149"})
	require.NoError(t, err)
	require.Equal(t, "349", result.Amount.String())

	require.Len(t, gateway.requests, 1)
	req := gateway.requests[0]
	require.EqualValues(t, 349, req.Amount)
	require.Equal(t, "254708374149", req.PhoneNumber)
	callback, err := url.Parse(req.CallbackURL)
	require.NoError(t, err)
	require.Equal(t, "shop.example.co.ke", callback.Host)
	require.Equal(t, "/api/v1/payments/mpesa/callback", callback.Path)
	require.Equal(t, order.ID.String(), callback.Query().Get("order_id"))

	stored := dbtest.ReloadPayment(t, conn, result.PaymentID)
	require.Equal(t, enums.PaymentStatusPending, stored.Status)
	require.NotNil(t, stored.CheckoutRequestID)
	require.Equal(t, result.CheckoutRequestID, *stored.CheckoutRequestID)
}

func TestInitiateRejectsSettledOrder(t *testing.T) {
	gateway := &fakeGateway{}
	svc, conn := newTestService(t, gateway, nil)
	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPaid, dbtest.Line{Product: product, Quantity: 1})

	_, err := svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, PhoneNumber: "0708374149"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Empty(t, gateway.requests)
}

func TestInitiateRateLimited(t *testing.T) {
	gateway := &fakeGateway{}
	svc, conn := newTestService(t, gateway, &fakeLimiter{allow: false})
	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})

	_, err := svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, PhoneNumber: "0708374149"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Empty(t, gateway.requests)
}

func TestInitiateGatewayFailureCreatesNothing(t *testing.T) {
	gateway := &fakeGateway{err: pkgerrors.New(pkgerrors.CodeDependency, "stk push rejected")}
	svc, conn := newTestService(t, gateway, nil)
	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})

	_, err := svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, PhoneNumber: "0708374149"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, conn.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestInitiateValidation(t *testing.T) {
	svc, conn := newTestService(t, &fakeGateway{}, nil)
	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})

	_, err := svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, PhoneNumber: "12"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Initiate(context.Background(), InitiateInput{OrderID: product.ID, PhoneNumber: "0708374149"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestStatusFlags(t *testing.T) {
	svc, conn := newTestService(t, &fakeGateway{}, nil)
	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 10)

	pending := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})
	view, err := svc.Status(context.Background(), pending.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, view.PaymentStatus)
	require.False(t, view.IsPaid)
	require.False(t, view.IsFailed)

	deducted := dbtest.SeedOrder(t, conn, enums.OrderStatusStockDeducted, dbtest.Line{Product: product, Quantity: 1})
	paid := dbtest.SeedPayment(t, conn, deducted, enums.PaymentStatusPaid)
	view, err = svc.Status(context.Background(), deducted.ID)
	require.NoError(t, err)
	require.True(t, view.IsPaid)
	require.False(t, view.IsFailed)
	require.Equal(t, paid.ID, *view.PaymentID)

	cancelled := dbtest.SeedOrder(t, conn, enums.OrderStatusCancelled, dbtest.Line{Product: product, Quantity: 1})
	dbtest.SeedPayment(t, conn, cancelled, enums.PaymentStatusFailed)
	view, err = svc.Status(context.Background(), cancelled.ID)
	require.NoError(t, err)
	require.False(t, view.IsPaid)
	require.True(t, view.IsFailed)
}

func TestLatestForOrderPrefersNewest(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	product := dbtest.SeedProduct(t, conn, "Bread", "65.00", 10)
	order := dbtest.SeedOrder(t, conn, enums.OrderStatusPending, dbtest.Line{Product: product, Quantity: 1})

	older := &models.Payment{OrderID: order.ID, Amount: order.TotalPrice, Status: enums.PaymentStatusFailed, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &models.Payment{OrderID: order.ID, Amount: order.TotalPrice, Status: enums.PaymentStatusPending, CreatedAt: time.Now().UTC()}
	_, err := repo.Create(context.Background(), newer)
	require.NoError(t, err)
	_, err = repo.Create(context.Background(), older)
	require.NoError(t, err)

	latest, err := repo.LatestForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, newer.ID, latest.ID)
}
