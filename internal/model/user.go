package model

import (
	"time"

	"github.com/google/uuid"
)

// Role enumerates the fixed set of principal roles.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleProctor Role = "PROCTOR"
	RoleAdmin   Role = "ADMIN"
)

// User represents a platform identity. Accounts are soft-deactivated, never purged.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	PhotoPath    *string   `json:"photo_path,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterRequest is the payload for student self-registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// LoginRequest is the payload for credential login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh capability being rotated.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenPair is returned by login and refresh. Refresh always rotates:
// the presented refresh token is revoked and both tokens are new.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse bundles the authenticated user with a fresh token pair.
type LoginResponse struct {
	User   *User     `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// CreateUserRequest is the admin payload for creating an account of any role.
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Name     string `json:"name" binding:"required,min=2,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"required,oneof=STUDENT PROCTOR ADMIN"`
}

// UpdateRoleRequest changes an account's role.
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=STUDENT PROCTOR ADMIN"`
}
