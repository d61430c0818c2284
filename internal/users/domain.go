package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

// User statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPending  = "pending"
)

var (
	// ErrNotFound is returned for users outside the caller's company too.
	ErrNotFound = fmt.Errorf("users: %w", httpx.ErrNotFound)
	// ErrEmailTaken rejects a second account with the same email.
	ErrEmailTaken = fmt.Errorf("users: email already registered: %w", httpx.ErrDuplicate)
	// ErrForbidden guards user management against non-admins.
	ErrForbidden = fmt.Errorf("users: %w", httpx.ErrForbidden)
)

// User represents a user account for management.
type User struct {
	ID          uuid.UUID  `json:"id"`
	CompanyID   uuid.UUID  `json:"company_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	MasterAdmin bool       `json:"is_master_admin"`
	Phone       string     `json:"phone,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateInput carries the fields of a new user.
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user viewer cliente"`
	Phone    string `json:"phone" validate:"max=30"`
}

// UpdateInput changes a user; nil fields are kept.
type UpdateInput struct {
	Name   *string `json:"name" validate:"omitempty,max=120"`
	Role   *string `json:"role" validate:"omitempty,oneof=admin user viewer cliente"`
	Status *string `json:"status" validate:"omitempty,oneof=active inactive pending"`
	Phone  *string `json:"phone" validate:"omitempty,max=30"`
}
