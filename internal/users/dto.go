package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlearnhq/courseware-backend/pkg/db/models"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	GlobalStaff bool       `json:"global_staff"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TokenDTO carries a freshly minted access token.
type TokenDTO struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RegisterParams holds the data required to create an account.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	FullName string
}

// LoginParams identifies an account by username or email.
type LoginParams struct {
	Username string
	Email    string
	Password string
}

func toUserDTO(u models.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		GlobalStaff: u.GlobalStaff,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}
