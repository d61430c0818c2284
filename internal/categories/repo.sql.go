package categories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const categoryColumns = `id, company_id, name, description, color, icon, type, is_active, created_at, updated_at`

// List returns categories ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Category, error) {
	sql := `SELECT ` + categoryColumns + ` FROM categories WHERE company_id = $1`
	if !filter.IncludeInactive {
		sql += ` AND is_active`
	}
	args := []any{filter.CompanyID}
	if filter.Type != nil {
		sql += ` AND type = $2`
		args = append(args, string(*filter.Type))
	}
	rows, err := r.pool.Query(ctx, sql+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get fetches a category by id, active or not.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

// Insert stores a category.
func (r *Repository) Insert(ctx context.Context, c Category) (Category, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO categories (id, company_id, name, description, color, icon, type, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)`,
		c.ID, c.CompanyID, c.Name, c.Description, c.Color, c.Icon, string(c.Type), c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Category{}, ErrDuplicate
	}
	return c, err
}

// Update writes every mutable column, including is_active.
func (r *Repository) Update(ctx context.Context, c Category) (Category, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $2, description = $3, color = $4, icon = $5, type = $6, is_active = $7, updated_at = $8
WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Color, c.Icon, string(c.Type), c.IsActive, c.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Category{}, ErrDuplicate
		}
		return Category{}, err
	}
	if tag.RowsAffected() == 0 {
		return Category{}, ErrNotFound
	}
	return c, nil
}

func scanCategory(row pgx.Row) (Category, error) {
	var (
		c   Category
		typ string
	)
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.Color, &c.Icon, &typ, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	c.Type = ledger.EntryType(typ)
	return c, err
}
