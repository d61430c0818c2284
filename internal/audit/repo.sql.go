package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Window returns up to limit rows starting at offset, newest first.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	query, args := timelineQuery(f)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

// All returns every row matching f, newest first.
func (r *Repository) All(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	query, args := timelineQuery(f)
	return r.query(ctx, query, args...)
}

func timelineQuery(f TimelineFilters) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE a.company_id = $1`)
	args := []any{f.CompanyID}
	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, clause, len(args))
	}
	if !f.From.IsZero() {
		add(" AND a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add(" AND a.occurred_at < $%d", f.To)
	}
	if f.Actor != "" {
		args = append(args, "%"+f.Actor+"%")
		n := len(args)
		fmt.Fprintf(&b, " AND (u.name ILIKE $%d OR u.email ILIKE $%d)", n, n)
	}
	if f.Entity != "" {
		add(" AND a.entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add(" AND a.action = $%d", f.Action)
	}
	b.WriteString(" ORDER BY a.occurred_at DESC, a.id DESC")
	return b.String(), args
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		var meta []byte
		err := row.Scan(&t.ID, &t.At, &t.ActorID, &t.ActorName, &t.Action, &t.Entity, &t.EntityID, &meta)
		t.Meta = meta
		return t, err
	})
}
