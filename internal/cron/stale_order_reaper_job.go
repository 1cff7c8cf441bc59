package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/internal/orders"
	"github.com/duka/supermarket-backend/pkg/enums"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/outbox"
	"github.com/duka/supermarket-backend/pkg/outbox/payloads"
)

// StaleOrderReaperJobName labels the reaper in logs and metrics.
const StaleOrderReaperJobName = "stale-order-reaper"

const (
	defaultStaleAfter  = 72 * time.Hour
	defaultReaperBatch = 200
)

// StaleOrderReaperParams configure the reaper.
type StaleOrderReaperParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Orders     orders.Repository
	Payments   orders.PaymentFailer
	Outbox     outboxEmitter
	StaleAfter time.Duration
	BatchSize  int
}

// StaleOrderReaperJob cancels PENDING orders nobody paid for and fails their
// open payment attempts.
type StaleOrderReaperJob struct {
	logg       *logger.Logger
	db         txRunner
	orders     orders.Repository
	machine    *orders.StateMachine
	payments   orders.PaymentFailer
	outbox     outboxEmitter
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// NewStaleOrderReaperJob validates params and applies the 72h/200 defaults.
func NewStaleOrderReaperJob(params StaleOrderReaperParams) (*StaleOrderReaperJob, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment failer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox service required")
	}
	machine, err := orders.NewStateMachine(params.Orders)
	if err != nil {
		return nil, err
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReaperBatch
	}
	return &StaleOrderReaperJob{
		logg:       params.Logger,
		db:         params.DB,
		orders:     params.Orders,
		machine:    machine,
		payments:   params.Payments,
		outbox:     params.Outbox,
		staleAfter: staleAfter,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

func (j *StaleOrderReaperJob) Name() string { return StaleOrderReaperJobName }

// Run cancels one batch of stale orders. Each order gets its own
// transaction so one bad row does not hold back the rest.
func (j *StaleOrderReaperJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	ids, err := j.orders.FindPendingBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("query stale orders: %w", err)
	}

	var (
		cancelled int64
		errs      error
	)
	for _, id := range ids {
		changed, err := j.expire(ctx, id, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if changed {
			cancelled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(ids),
		"cancelled":  cancelled,
	})
	j.logg.Info(logCtx, "cron.stale_orders.swept")
	return cancelled, errs
}

func (j *StaleOrderReaperJob) expire(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error) {
	changed := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := j.orders.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		// a callback may have settled it since the scan
		if order.Status != enums.OrderStatusPending || !order.CreatedAt.Before(cutoff) {
			return nil
		}
		if _, err := j.machine.Advance(ctx, tx, order, enums.OrderStatusCancelled); err != nil {
			return err
		}
		failed, err := j.payments.FailPending(ctx, tx, order.ID)
		if err != nil {
			return fmt.Errorf("fail pending payments: %w", err)
		}

		now := j.now().UTC()
		if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:   order.ID,
				CreatedAt: order.CreatedAt,
				ExpiredAt: now,
				Customer: payloads.Customer{
					Name:  order.CustomerName,
					Email: order.CustomerEmail,
					Phone: order.CustomerPhone,
				},
			},
		}); err != nil {
			return err
		}

		logCtx := j.logg.WithOrderID(ctx, order.ID.String())
		logCtx = j.logg.WithField(logCtx, "payments_failed", failed)
		j.logg.Info(logCtx, "cron.stale_order.cancelled")
		changed = true
		return nil
	})
	return changed, err
}
