package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"status": "PENDING"})

	require.Equal(t, http.StatusCreated, w.Code)
	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "PENDING", body.Data.(map[string]any)["status"])
}

func TestWriteErrorExposesDomainMessage(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for Sugar 2kg").
		WithDetails(map[string]any{"available": 1})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusConflict, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInsufficientStock), body.Error.Code)
	require.Equal(t, "insufficient stock for Sugar 2kg", body.Error.Message)
	require.NotNil(t, body.Error.Details)
}

func TestWriteErrorHidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	require.Equal(t, "internal server error", body.Error.Message)
	require.Nil(t, body.Error.Details)
}

func TestWriteGatewayAck(t *testing.T) {
	w := httptest.NewRecorder()
	WriteGatewayAck(w, http.StatusOK, 0, "Callback processed")

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Callback processed"}`, w.Body.String())
}

func TestWriteErrorAdvertisesRetryForTransientFailures(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeTransientPersist, errors.New("deadlock detected"), "persist callback"))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, retryAfterSeconds, w.Header().Get("Retry-After"))
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "temporarily unavailable", body.Error.Message)
}

func TestWriteErrorDropsDetailsForClosedCodes(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "owner or admin role required").
		WithDetails(map[string]any{"role": "staff"}))

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, w.Header().Get("Retry-After"))
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "owner or admin role required", body.Error.Message)
	require.Nil(t, body.Error.Details)
}
