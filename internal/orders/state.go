package orders

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/db/models"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:       {enums.OrderStatusPaid, enums.OrderStatusFailed, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:          {enums.OrderStatusStockDeducted, enums.OrderStatusShipped, enums.OrderStatusRefunded},
	enums.OrderStatusStockDeducted: {enums.OrderStatusShipped, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:       {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	enums.OrderStatusDelivered:     {enums.OrderStatusRefunded},
}

// CanTransition reports whether from → to is an edge of the order lifecycle.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates a status change. It returns changed=false without an
// error when re-applying FAILED or CANCELLED.
func Transition(from, to enums.OrderStatus) (bool, error) {
	if !to.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", to))
	}
	if from == to && (to == enums.OrderStatusFailed || to == enums.OrderStatusCancelled) {
		return false, nil
	}
	if !CanTransition(from, to) {
		return false, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order cannot move from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return true, nil
}

// StateMachine persists validated order transitions.
type StateMachine struct {
	repo Repository
}

// NewStateMachine wires the state machine over the orders repository.
func NewStateMachine(repo Repository) (*StateMachine, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &StateMachine{repo: repo}, nil
}

// Advance moves order to target inside tx. The update is guarded on the
// status the caller observed, so a concurrent writer surfaces as a conflict
// instead of a lost update. order.Status is updated on success.
func (m *StateMachine) Advance(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	changed, err := Transition(order.Status, target)
	if err != nil || !changed {
		return false, err
	}

	updated, err := m.repo.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, target)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !updated {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	order.Status = target
	return true, nil
}
