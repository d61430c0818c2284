package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

// ErrMasterAdminExists is returned when bootstrapping twice.
var ErrMasterAdminExists = fmt.Errorf("auth: master admin already exists: %w", httpx.ErrConflict)

// ErrWeakPassword rejects passwords shorter than MinPasswordLength.
var ErrWeakPassword = fmt.Errorf("auth: password must have at least %d characters: %w", MinPasswordLength, httpx.ErrValidation)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	audit  AuditPort
	reset  PasswordReset
	logger *slog.Logger
	now    func() time.Time
}

// AuditPort records authentication events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService constructs a new Service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Authenticate validates email/password credentials. Only active users may
// sign in.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		return User{}, shared.ErrAccountInactive
	}
	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("touch last login", slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}
	s.record(ctx, user, "auth.login", nil)
	return user, nil
}

// Principal resolves the principal for a signed-in user id.
func (s *Service) Principal(ctx context.Context, id uuid.UUID) (shared.Principal, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return shared.Principal{}, err
	}
	if user.Status != StatusActive {
		return shared.Principal{}, shared.ErrAccountInactive
	}
	return user.Principal(), nil
}

// User returns the profile of a user.
func (s *Service) User(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, s.now()); err != nil {
		return err
	}
	s.record(ctx, user, "auth.password", nil)
	return nil
}

// EnablePasswordReset turns on the forgot-password flow.
func (s *Service) EnablePasswordReset(cfg PasswordReset) {
	if cfg.Mailer == nil {
		cfg.Mailer = LogMailer{Logger: s.logger}
	}
	s.reset = cfg
}

// RequestPasswordReset mails a single-use reset link to an active user.
// Unknown or inactive emails succeed silently so callers cannot tell which emails exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.reset.Store == nil {
		return ErrResetDisabled
	}
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.Status != StatusActive {
		return nil
	}
	token, err := newResetToken()
	if err != nil {
		return err
	}
	if err := s.reset.Store.Save(ctx, token, user.ID); err != nil {
		return err
	}
	link := s.reset.LinkBase + "?token=" + url.QueryEscape(token)
	if err := s.reset.Mailer.SendPasswordReset(ctx, user, link); err != nil {
		return err
	}
	s.record(ctx, user, "auth.password_reset_request", nil)
	return nil
}

// ResetPassword sets a new password using a reset token. The token is only
// spent once the new password is acceptable.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	if s.reset.Store == nil {
		return ErrResetDisabled
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	id, err := s.reset.Store.Consume(ctx, token)
	if err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	if user.Status != StatusActive {
		return shared.ErrAccountInactive
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, s.now()); err != nil {
		return err
	}
	s.record(ctx, user, "auth.password_reset", nil)
	return nil
}

// BootstrapMasterAdmin creates the first company and its master admin. It
// refuses once any master admin exists. The repository enforces the single
// master admin, so concurrent calls let exactly one through.
func (s *Service) BootstrapMasterAdmin(ctx context.Context, in MasterAdminInput) (User, error) {
	exists, err := s.repo.HasMasterAdmin(ctx)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, ErrMasterAdminExists
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now()
	user, err := s.repo.CreateMasterAdmin(ctx, strings.TrimSpace(in.CompanyName), User{
		ID:           uuid.New(),
		CompanyID:    uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         "admin",
		Status:       StatusActive,
		MasterAdmin:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, user, "auth.master_admin", map[string]any{"company": in.CompanyName})
	return user, nil
}

// HashPassword hashes a password with bcrypt after checking its length.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) record(ctx context.Context, user User, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   user.ID,
		CompanyID: user.CompanyID,
		Action:    action,
		Entity:    "user",
		EntityID:  user.ID.String(),
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("auth audit", slog.String("action", action), slog.Any("error", err))
	}
}
