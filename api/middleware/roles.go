package middleware

import (
	"net/http"

	"github.com/duka/supermarket-backend/api/responses"
	"github.com/duka/supermarket-backend/pkg/enums"
	pkgerrors "github.com/duka/supermarket-backend/pkg/errors"
	"github.com/duka/supermarket-backend/pkg/logger"
)

// RequireCompensator admits owners and admins. Stock and refund operations
// sit behind it.
func RequireCompensator(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireRole(logg, enums.OperatorRole.CanCompensate, "owner or admin role required")
}

func requireRole(logg *logger.Logger, allowed func(enums.OperatorRole) bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if !role.IsValid() || !allowed(role) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, message).
					WithDetails(map[string]any{"role": string(role)}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
