package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conectell/livrocaixa/internal/platform/db"
	"github.com/conectell/livrocaixa/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
	HasMasterAdmin(ctx context.Context) (bool, error)
	CreateMasterAdmin(ctx context.Context, companyName string, user User) (User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, company_id, email, name, password_hash, role, status, is_master_admin, last_login, created_at, updated_at`

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// TouchLastLogin records a successful sign-in.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasMasterAdmin reports whether any master admin exists.
func (r *PGRepository) HasMasterAdmin(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE is_master_admin)`).Scan(&exists)
	return exists, err
}

// singleMasterIndex limits users to one master admin.
const singleMasterIndex = "uq_users_single_master"

// CreateMasterAdmin inserts the first company and its master admin together.
// A concurrent bootstrap that loses the race gets ErrMasterAdminExists.
func (r *PGRepository) CreateMasterAdmin(ctx context.Context, companyName string, user User) (User, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE is_master_admin)`).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrMasterAdminExists
		}
		if _, err := tx.Exec(ctx, `INSERT INTO companies (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
			user.CompanyID, companyName, user.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			user.ID, user.CompanyID, user.Email, user.Name, user.PasswordHash, user.Role, user.Status,
			user.MasterAdmin, user.LastLogin, user.CreatedAt, user.UpdatedAt)
		return err
	})
	if db.IsUniqueViolation(err) && db.ConstraintName(err) == singleMasterIndex {
		return User{}, ErrMasterAdminExists
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.CompanyID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Status,
		&u.MasterAdmin, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

var _ Repository = (*PGRepository)(nil)
