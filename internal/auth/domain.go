package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/shared"
)

// User statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPending  = "pending"
)

// MinPasswordLength is enforced on every password the service hashes.
const MinPasswordLength = 8

// User represents an authenticated user account.
type User struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    uuid.UUID  `json:"company_id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	MasterAdmin  bool       `json:"is_master_admin"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Principal converts the user into the request principal.
func (u User) Principal() shared.Principal {
	return shared.Principal{
		UserID:      u.ID,
		CompanyID:   u.CompanyID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		MasterAdmin: u.MasterAdmin,
	}
}

// MasterAdminInput bootstraps the first company and its master admin.
type MasterAdminInput struct {
	CompanyName string `json:"company_name" validate:"required,max=160"`
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
}
