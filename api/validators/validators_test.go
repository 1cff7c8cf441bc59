package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
)

type deductBody struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p1","quantity":2}`))
	var body deductBody
	require.NoError(t, DecodeJSONBody(req, &body))
	require.Equal(t, 2, body.Quantity)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p1","quantity":2,"extra":true}`))
	var body deductBody
	err := DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":-1}`))
	var body deductBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["product_id"])
	require.Equal(t, "must be greater than 0", details["quantity"])
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	v, err := ParseQueryInt(req, "limit", 50, 1, 200)
	require.NoError(t, err)
	require.Equal(t, 20, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 50, 1, 200)
	require.NoError(t, err)
	require.Equal(t, 50, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=999", nil), "limit", 50, 1, 200)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderId", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "orderId")
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = ParseUUIDParam(withParam("nope"), "orderId")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	require.Equal(t, "abc", SanitizeString(" abc ", 0))
	require.Equal(t, "chai", SanitizeString("ch\x00ai", 10))
	require.Equal(t, "ñañ", SanitizeString("ñañaña", 3))
}

func TestDecodeJSONBodyRejectsEmptyAndTrailingDocuments(t *testing.T) {
	var body deductBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, "request body is required", pkgerrors.As(err).Message())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p1","quantity":1}{"product_id":"p2"}`))
	err = DecodeJSONBody(req, &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	payload := `{"product_id":"` + strings.Repeat("x", MaxBodyBytes) + `","quantity":1}`
	var body deductBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload)), &body)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestParseQueryIntRejectsNonNumeric(t *testing.T) {
	_, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil), "limit", 50, 1, 200)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
