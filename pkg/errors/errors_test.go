package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeMalformedCallback, status: http.StatusBadRequest, publicMsg: "malformed callback payload", retryable: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, publicMsg: "invalid status transition", detailsOK: true},
		{code: CodeInvalidRefundTarget, status: http.StatusUnprocessableEntity, publicMsg: "payment cannot be refunded", detailsOK: true},
		{code: CodeAlreadyRolledBack, status: http.StatusConflict, publicMsg: "stock already rolled back", detailsOK: true},
		{code: CodeTransientPersist, status: http.StatusServiceUnavailable, publicMsg: "temporarily unavailable", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "product short")
	outer := Wrap(CodeInternal, fmt.Errorf("deduct: %w", inner), "settle order")

	if !IsCode(outer, CodeInsufficientStock) {
		t.Fatalf("expected nested insufficient stock code")
	}
	if !IsCode(outer, CodeInternal) {
		t.Fatalf("expected outer internal code")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("unexpected not found match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpFlattensChainAndPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payments_checkout_request_id", TableName: "payments"}
	err := Wrap(CodeConflict, fmt.Errorf("insert payment: %w", pgErr), "payment already recorded")

	dump := Dump(err)
	require.Equal(t, CodeConflict, dump.Code)
	require.Len(t, dump.Chain, 3)
	require.NotNil(t, dump.PG)
	require.Equal(t, "23505", dump.PG.Code)

	fields := dump.LogFields()
	require.Equal(t, CodeConflict, fields["error_code"])
	require.Equal(t, "ux_payments_checkout_request_id", fields["pg_constraint"])
	require.NotContains(t, fields, "pg_detail")
}

func TestDumpOfPlainError(t *testing.T) {
	require.Equal(t, ErrorDump{}, Dump(nil))

	fields := Dump(stdErrors.New("boom")).LogFields()
	require.Equal(t, map[string]any{"error": "boom"}, fields)
}

func TestErrorfKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Errorf(CodeDependency, "charge order %d: %w", 42, cause)
	if err.Message() != "charge order 42: connection reset" {
		t.Fatalf("unexpected message %q", err.Message())
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("Errorf did not record the %%w cause")
	}
	if Errorf(CodeValidation, "plain %s", "text").Unwrap() != nil {
		t.Fatalf("no cause expected without %%w")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeAlreadyRolledBack, "")
	err := fmt.Errorf("refund: %w", New(CodeAlreadyRolledBack, "pair restored"))
	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("expected code match through wrapping")
	}
	if stdErrors.Is(err, New(CodeNotFound, "")) {
		t.Fatalf("different codes must not match")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":        {nil, false},
		"plain":      {stdErrors.New("boom"), true},
		"validation": {New(CodeValidation, "bad"), false},
		"transient":  {Wrap(CodeTransientPersist, stdErrors.New("deadlock"), "persist"), true},
		"wrapped":    {fmt.Errorf("ctx: %w", New(CodeInsufficientStock, "short")), false},
	}
	for name, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", name, got, tc.want)
		}
	}
}
