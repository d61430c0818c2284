// Package categories manages the income and expense categories entries are filed under.
package categories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

// DefaultColor is used when a category is created without one.
const DefaultColor = "#6B7280"

var (
	ErrNotFound  = fmt.Errorf("categories: %w", httpx.ErrNotFound)
	ErrDuplicate = fmt.Errorf("categories: name already used for this type: %w", httpx.ErrDuplicate)
)

// Category groups entries of one direction.
type Category struct {
	ID          uuid.UUID        `json:"id"`
	CompanyID   uuid.UUID        `json:"company_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Color       string           `json:"color"`
	Icon        string           `json:"icon,omitempty"`
	Type        ledger.EntryType `json:"type"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// CreateInput carries a new category.
type CreateInput struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=255"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Icon        string `json:"icon" validate:"max=40"`
	Type        string `json:"type" validate:"required,oneof=income expense"`
}

// UpdateInput changes a category; nil fields are kept.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=80"`
	Description *string `json:"description" validate:"omitempty,max=255"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	Icon        *string `json:"icon" validate:"omitempty,max=40"`
	Type        *string `json:"type" validate:"omitempty,oneof=income expense"`
}

// ListFilter narrows a category listing. Deactivated categories are only
// returned with IncludeInactive.
type ListFilter struct {
	CompanyID       uuid.UUID
	Type            *ledger.EntryType
	IncludeInactive bool
}

// Stats counts a company's categories. Income and Expense count active ones.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Income   int `json:"income"`
	Expense  int `json:"expense"`
}

// Usage is an active category with the entries filed under it.
type Usage struct {
	Category
	EntriesCount int             `json:"entries_count"`
	Total        decimal.Decimal `json:"total"`
}
