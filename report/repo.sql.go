package report

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository logs generated reports in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert records a generated report. Re-inserting an existing id is a no-op.
func (r *Repository) Insert(ctx context.Context, g GeneratedReport) error {
	filters, err := json.Marshal(g.Filters)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO generated_reports (id, company_id, user_id, title, type, file_name, filters, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
		g.ID, g.CompanyID, nullUUID(g.UserID), g.Title, string(g.Type), g.FileName, filters, g.GeneratedAt)
	return err
}

// Get fetches one report of the company.
func (r *Repository) Get(ctx context.Context, companyID, id uuid.UUID) (GeneratedReport, error) {
	items, err := r.query(ctx, `WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return GeneratedReport{}, err
	}
	if len(items) == 0 {
		return GeneratedReport{}, ErrNotFound
	}
	return items[0], nil
}

// List returns the reports of a company, newest first.
func (r *Repository) List(ctx context.Context, companyID uuid.UUID, limit int) ([]GeneratedReport, error) {
	return r.query(ctx, `WHERE company_id = $1 ORDER BY generated_at DESC LIMIT $2`, companyID, limit)
}

func (r *Repository) query(ctx context.Context, where string, args ...any) ([]GeneratedReport, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, COALESCE(user_id, '00000000-0000-0000-0000-000000000000'::uuid), title, type, file_name, filters, generated_at
FROM generated_reports `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GeneratedReport
	for rows.Next() {
		var (
			g       GeneratedReport
			typ     string
			filters []byte
		)
		if err := rows.Scan(&g.ID, &g.CompanyID, &g.UserID, &g.Title, &typ, &g.FileName, &filters, &g.GeneratedAt); err != nil {
			return nil, err
		}
		g.Type = Type(typ)
		if err := json.Unmarshal(filters, &g.Filters); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Delete removes a report of the company. It reports whether a row was removed.
func (r *Repository) Delete(ctx context.Context, companyID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generated_reports WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
