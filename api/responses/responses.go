package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
	"github.com/duka/supermarket-backend/pkg/types"
)

// publicMessageCodes expose the service's message instead of the generic
// one; their messages never carry internals.
var publicMessageCodes = map[pkgerrors.Code]struct{}{
	pkgerrors.CodeValidation:          {},
	pkgerrors.CodeForbidden:           {},
	pkgerrors.CodeUnauthorized:        {},
	pkgerrors.CodeNotFound:            {},
	pkgerrors.CodeConflict:            {},
	pkgerrors.CodeStateConflict:       {},
	pkgerrors.CodeOrderNotFound:       {},
	pkgerrors.CodeInsufficientStock:   {},
	pkgerrors.CodeInvalidTransition:   {},
	pkgerrors.CodeInvalidRefundTarget: {},
	pkgerrors.CodeAlreadyRolledBack:   {},
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteGatewayAck answers an M-Pesa callback.
func WriteGatewayAck(w http.ResponseWriter, status, resultCode int, desc string) {
	_ = writeJSON(w, status, types.GatewayAck{ResultCode: resultCode, ResultDesc: desc})
}

// retryAfterSeconds is advertised on 503 responses for retryable codes.
const retryAfterSeconds = "2"

// WriteError renders err as an ErrorEnvelope. Errors without a code become
// CodeInternal. Service messages are exposed only for publicMessageCodes and
// details only where the code allows them.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	code := typed.Code()
	meta := pkgerrors.MetadataFor(code)

	apiErr := types.APIError{Code: string(code), Message: meta.PublicMessage}
	if _, ok := publicMessageCodes[code]; ok && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		fields := pkgerrors.Dump(err).LogFields()
		fields["http_status"] = meta.HTTPStatus
		ctx = logg.WithFields(ctx, fields)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	if meta.Retryable && meta.HTTPStatus == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if err := writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr}); err != nil && logg != nil {
		logg.Error(ctx, "response.encode_failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
