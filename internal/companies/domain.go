// Package companies serves the company profile and its key/value system settings.
package companies

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

var ErrNotFound = fmt.Errorf("companies: %w", httpx.ErrNotFound)

// Company is the tenant every record belongs to.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	TradeName string    `json:"trade_name,omitempty"`
	TaxID     string    `json:"tax_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	LogoURL   string    `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileInput replaces the editable company fields.
type ProfileInput struct {
	Name      string `json:"name" validate:"required,max=160"`
	TradeName string `json:"trade_name" validate:"max=160"`
	TaxID     string `json:"tax_id" validate:"max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=30"`
	Address   string `json:"address" validate:"max=255"`
	LogoURL   string `json:"logo_url" validate:"omitempty,url"`
}

// Setting is one JSON valued system setting.
type Setting struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SettingInput upserts a setting.
type SettingInput struct {
	Value       json.RawMessage `json:"value" validate:"required"`
	Description string          `json:"description" validate:"max=255"`
}
