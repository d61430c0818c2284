package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

const userColumns = `id, company_id, email, name, role, status, is_master_admin, phone, avatar_url, last_login, created_at, updated_at`

// ListByCompany returns the users of a company, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// Insert stores a new user with its password hash.
func (r *Repository) Insert(ctx context.Context, user User, passwordHash string) (User, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id, company_id, email, name, password_hash, role, status, is_master_admin, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9, $9)`,
		user.ID, user.CompanyID, user.Email, user.Name, passwordHash, user.Role, user.Status, user.Phone, user.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return user, nil
}

// Update writes the editable fields of a user.
func (r *Repository) Update(ctx context.Context, user User) (User, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name = $2, role = $3, status = $4, phone = $5, updated_at = $6 WHERE id = $1`,
		user.ID, user.Name, user.Role, user.Status, user.Phone, user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.CompanyID, &u.Email, &u.Name, &u.Role, &u.Status, &u.MasterAdmin,
		&u.Phone, &u.AvatarURL, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
