package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/duka/supermarket-backend/pkg/enums"
)

// AccessTokenPayload is the input to MintAccessToken. JTI is generated when
// empty.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.OperatorRole
	JTI    string
}

// AccessTokenClaims is the operator token body.
type AccessTokenClaims struct {
	UserID uuid.UUID          `json:"user_id"`
	Role   enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) checkIdentity() error {
	if c.UserID == uuid.Nil || !c.Role.IsValid() {
		return ErrMissingOperator
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return ErrMissingOperator
	}
	return nil
}
