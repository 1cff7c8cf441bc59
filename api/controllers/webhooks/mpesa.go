package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/duka/supermarket-backend/api/responses"
	mpesawebhook "github.com/duka/supermarket-backend/internal/webhooks/mpesa"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
)

const (
	ackProcessed       = "Callback processed"
	ackAlreadyHandled  = "Already processed"
	ackOrderNotFound   = "Order not found, logged"
	ackAnomaly         = "Callback conflicts with recorded payment, logged"
	ackInvalidPayload  = "Invalid callback payload"
	ackProcessingError = "Error processing callback"

	maxCallbackBody = 64 << 10
)

// CallbackHandler reconciles a parsed STK callback.
type CallbackHandler interface {
	Handle(ctx context.Context, cb *mpesawebhook.Callback) (*mpesawebhook.Result, error)
}

// CallbackGuard is satisfied by *mpesawebhook.IdempotencyGuard.
type CallbackGuard interface {
	CheckAndMark(ctx context.Context, checkoutRequestID string, resultCode int) (bool, error)
	Release(ctx context.Context, checkoutRequestID string, resultCode int) error
}

// MpesaCallback receives Daraja STK push results. ResultCode 0 tells the
// gateway to stop redelivering; 1 asks it to retry.
func MpesaCallback(handler CallbackHandler, guard CallbackGuard, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if handler == nil {
			if logg != nil {
				logg.Error(ctx, "mpesa callback handler unavailable", pkgerrors.New(pkgerrors.CodeInternal, "handler missing"))
			}
			responses.WriteGatewayAck(w, http.StatusInternalServerError, 1, ackProcessingError)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			responses.WriteGatewayAck(w, http.StatusBadRequest, 1, ackInvalidPayload)
			return
		}

		cb, err := mpesawebhook.ParseCallback(body, r.URL.Query().Get("order_id"))
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "mpesa callback rejected")
			}
			responses.WriteGatewayAck(w, http.StatusBadRequest, 1, ackInvalidPayload)
			return
		}

		// callbacks without a CheckoutRequestID have no dedupe key
		guarded := guard != nil && cb.CheckoutRequestID != ""
		if guarded {
			seen, err := guard.CheckAndMark(ctx, cb.CheckoutRequestID, cb.ResultCode)
			if err != nil {
				// Redis is an optimisation; the ledger still dedupes.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "mpesa callback guard unavailable")
				}
			} else if seen {
				responses.WriteGatewayAck(w, http.StatusOK, 0, ackAlreadyHandled)
				return
			}
		}

		result, err := handler.Handle(ctx, cb)
		if err != nil {
			if guarded {
				if relErr := guard.Release(context.WithoutCancel(ctx), cb.CheckoutRequestID, cb.ResultCode); relErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", relErr.Error()), "mpesa callback guard release failed")
				}
			}
			if pkgerrors.IsCode(err, pkgerrors.CodeMalformedCallback) {
				responses.WriteGatewayAck(w, http.StatusBadRequest, 1, ackInvalidPayload)
				return
			}
			responses.WriteGatewayAck(w, http.StatusInternalServerError, 1, ackProcessingError)
			return
		}

		switch result.Outcome {
		case mpesawebhook.OutcomeDuplicate:
			responses.WriteGatewayAck(w, http.StatusOK, 0, ackAlreadyHandled)
		case mpesawebhook.OutcomeOrderNotFound:
			responses.WriteGatewayAck(w, http.StatusOK, 0, ackOrderNotFound)
		case mpesawebhook.OutcomeAnomaly:
			responses.WriteGatewayAck(w, http.StatusOK, 0, ackAnomaly)
		default:
			responses.WriteGatewayAck(w, http.StatusOK, 0, ackProcessed)
		}
	}
}
