package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

// GatewayResult is the outcome the gateway reported for one attempt.
type GatewayResult struct {
	ResultCode      int
	ResultDesc      string
	ReceiptNo       string
	PhoneNumber     string
	TransactionDate time.Time
}

// Succeeded reports whether the gateway accepted the payment.
func (r GatewayResult) Succeeded() bool {
	return r.ResultCode == 0
}

func (r GatewayResult) target() enums.PaymentStatus {
	if r.Succeeded() {
		return enums.PaymentStatusPaid
	}
	return enums.PaymentStatusFailed
}

// StateMachine persists payment transitions. Payment status only moves
// forward: PENDING to PAID or FAILED, then PAID to REFUNDED.
type StateMachine struct {
	repo Repository
	now  func() time.Time
}

// NewStateMachine wires the state machine over the payments repository.
func NewStateMachine(repo Repository) (*StateMachine, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	return &StateMachine{repo: repo, now: time.Now}, nil
}

// Settle records a gateway outcome on a PENDING payment. Replaying the
// outcome already stored returns changed=false. A terminal payment receiving
// a different outcome is rejected with INVALID_TRANSITION.
func (m *StateMachine) Settle(ctx context.Context, tx *gorm.DB, payment *models.Payment, result GatewayResult) (bool, error) {
	if payment == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment is required")
	}
	target := result.target()

	if payment.Status != enums.PaymentStatusPending {
		if payment.Status == target {
			return false, nil
		}
		return false, invalidTransition(payment.Status, target)
	}

	updates := map[string]any{"status": target}
	var (
		receipt *string
		phone   *string
		paidAt  *time.Time
	)
	if target == enums.PaymentStatusPaid {
		if value := strings.TrimSpace(result.ReceiptNo); value != "" {
			receipt = &value
			updates["receipt_no"] = value
		}
		settledAt := result.TransactionDate
		if settledAt.IsZero() {
			settledAt = m.now()
		}
		settledAt = settledAt.UTC()
		paidAt = &settledAt
		updates["transaction_date"] = settledAt
	}
	if value := strings.TrimSpace(result.PhoneNumber); value != "" {
		phone = &value
		updates["phone_number"] = value
	}

	updated, err := m.repo.WithTx(tx).UpdateStatus(ctx, payment.ID, enums.PaymentStatusPending, updates)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !updated {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
	}

	payment.Status = target
	if receipt != nil {
		payment.ReceiptNo = receipt
	}
	if paidAt != nil {
		payment.TransactionDate = paidAt
	}
	if phone != nil {
		payment.PhoneNumber = phone
	}
	return true, nil
}

// Refund moves a PAID payment to REFUNDED.
func (m *StateMachine) Refund(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment is required")
	}
	if payment.Status != enums.PaymentStatusPaid {
		return invalidTransition(payment.Status, enums.PaymentStatusRefunded)
	}
	updated, err := m.repo.WithTx(tx).UpdateStatus(ctx, payment.ID, enums.PaymentStatusPaid, map[string]any{
		"status": enums.PaymentStatusRefunded,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
	}
	payment.Status = enums.PaymentStatusRefunded
	return nil
}

// MarkFailed closes a PENDING payment without a gateway outcome. Already
// FAILED payments are left alone.
func (m *StateMachine) MarkFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) (bool, error) {
	if payment == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "payment is required")
	}
	switch payment.Status {
	case enums.PaymentStatusFailed:
		return false, nil
	case enums.PaymentStatusPending:
	default:
		return false, invalidTransition(payment.Status, enums.PaymentStatusFailed)
	}
	updated, err := m.repo.WithTx(tx).UpdateStatus(ctx, payment.ID, enums.PaymentStatusPending, map[string]any{
		"status": enums.PaymentStatusFailed,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !updated {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status changed concurrently")
	}
	payment.Status = enums.PaymentStatusFailed
	return true, nil
}

// FailPending fails every PENDING attempt of the order and returns how many
// rows changed.
func (m *StateMachine) FailPending(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return m.repo.WithTx(tx).FailPending(ctx, orderID)
}

func invalidTransition(from, to enums.PaymentStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payment cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
