package companies

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCompany fetches a company by id.
func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `SELECT id, name, trade_name, tax_id, email, phone, address, logo_url, created_at, updated_at
FROM companies WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.TradeName, &c.TaxID, &c.Email, &c.Phone, &c.Address, &c.LogoURL, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, ErrNotFound
	}
	return c, err
}

// UpdateCompany writes the profile columns.
func (r *Repository) UpdateCompany(ctx context.Context, c Company) (Company, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET name = $2, trade_name = $3, tax_id = $4, email = $5, phone = $6, address = $7, logo_url = $8, updated_at = $9
WHERE id = $1`, c.ID, c.Name, c.TradeName, c.TaxID, c.Email, c.Phone, c.Address, c.LogoURL, c.UpdatedAt)
	if err != nil {
		return Company{}, err
	}
	if tag.RowsAffected() == 0 {
		return Company{}, ErrNotFound
	}
	return c, nil
}

// ListSettings returns the settings of a company ordered by key.
func (r *Repository) ListSettings(ctx context.Context, companyID uuid.UUID) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT setting_key, setting_value, description, updated_at
FROM system_settings WHERE company_id = $1 ORDER BY setting_key`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.Description, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSetting inserts or replaces a setting.
func (r *Repository) UpsertSetting(ctx context.Context, companyID uuid.UUID, s Setting) (Setting, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO system_settings (company_id, setting_key, setting_value, description, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (company_id, setting_key) DO UPDATE SET setting_value = EXCLUDED.setting_value, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at`,
		companyID, s.Key, []byte(s.Value), s.Description, s.UpdatedAt)
	if err != nil {
		return Setting{}, err
	}
	return s, nil
}
