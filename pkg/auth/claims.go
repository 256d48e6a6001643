package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Username    string
	GlobalStaff bool
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients. Per-course
// roles are never embedded; they are looked up from the role store so that
// revocations take effect immediately.
type AccessTokenClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	GlobalStaff bool      `json:"global_staff,omitempty"`
	jwt.RegisteredClaims
}
