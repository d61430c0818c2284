package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/auth"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]User, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	Insert(ctx context.Context, user User, passwordHash string) (User, error)
	Update(ctx context.Context, user User) (User, error)
}

// AuditPort records user management events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// ListUsers returns the users of the actor's company.
func (s *Service) ListUsers(ctx context.Context, actor shared.Principal) ([]User, error) {
	return s.repo.ListByCompany(ctx, actor.CompanyID)
}

// GetUser returns a user of the actor's company.
func (s *Service) GetUser(ctx context.Context, actor shared.Principal, id uuid.UUID) (User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if user.CompanyID != actor.CompanyID {
		return User{}, ErrNotFound
	}
	return user, nil
}

// CreateUser adds an active user to the actor's company. New users default
// to the user role and can never be master admins.
func (s *Service) CreateUser(ctx context.Context, actor shared.Principal, in CreateInput) (User, error) {
	if !rbac.IsAdmin(actor.Role, actor.MasterAdmin) {
		return User{}, ErrForbidden
	}
	role := in.Role
	if role == "" {
		role = string(rbac.RoleUser)
	}
	if _, ok := rbac.ParseRole(role); !ok {
		return User{}, fmt.Errorf("users: unknown role %q: %w", role, httpx.ErrValidation)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now()
	user, err := s.repo.Insert(ctx, User{
		ID:        uuid.New(),
		CompanyID: actor.CompanyID,
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Name:      strings.TrimSpace(in.Name),
		Role:      role,
		Status:    StatusActive,
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}, hash)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "user.create", user.ID, map[string]any{"role": user.Role})
	return user, nil
}

// UpdateUser changes name, role, status or phone. Admins cannot lock
// themselves out and only master admins may edit other master admins.
func (s *Service) UpdateUser(ctx context.Context, actor shared.Principal, id uuid.UUID, in UpdateInput) (User, error) {
	if !rbac.IsAdmin(actor.Role, actor.MasterAdmin) {
		return User{}, ErrForbidden
	}
	user, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return User{}, err
	}
	if user.MasterAdmin && !actor.MasterAdmin {
		return User{}, ErrForbidden
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Role != nil {
		if user.ID == actor.UserID && *in.Role != user.Role {
			return User{}, fmt.Errorf("users: cannot change your own role: %w", httpx.ErrValidation)
		}
		user.Role = *in.Role
	}
	if in.Status != nil {
		if user.ID == actor.UserID && *in.Status != StatusActive {
			return User{}, fmt.Errorf("users: cannot deactivate yourself: %w", httpx.ErrValidation)
		}
		user.Status = *in.Status
	}
	user.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "user.update", updated.ID, map[string]any{"role": updated.Role, "status": updated.Status})
	return updated, nil
}

// DeleteUser deactivates a user; the record stays for the audit trail.
func (s *Service) DeleteUser(ctx context.Context, actor shared.Principal, id uuid.UUID) error {
	status := StatusInactive
	if id == actor.UserID {
		return fmt.Errorf("users: cannot delete yourself: %w", httpx.ErrValidation)
	}
	_, err := s.UpdateUser(ctx, actor, id, UpdateInput{Status: &status})
	return err
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		CompanyID: actor.CompanyID,
		Action:    action,
		Entity:    "user",
		EntityID:  id.String(),
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("users audit", slog.String("action", action), slog.Any("error", err))
	}
}
