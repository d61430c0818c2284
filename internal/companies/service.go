package companies

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

var settingKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

// RepositoryPort is the storage the service needs.
type RepositoryPort interface {
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	UpdateCompany(ctx context.Context, c Company) (Company, error)
	ListSettings(ctx context.Context, companyID uuid.UUID) ([]Setting, error)
	UpsertSetting(ctx context.Context, companyID uuid.UUID, s Setting) (Setting, error)
}

// AuditPort records profile and settings changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the actor's company and settings.
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

// Profile returns the actor's company.
func (s *Service) Profile(ctx context.Context, actor shared.Principal) (Company, error) {
	return s.repo.GetCompany(ctx, actor.CompanyID)
}

// UpdateProfile replaces the editable company fields.
func (s *Service) UpdateProfile(ctx context.Context, actor shared.Principal, in ProfileInput) (Company, error) {
	c, err := s.repo.GetCompany(ctx, actor.CompanyID)
	if err != nil {
		return Company{}, err
	}
	c.Name = strings.TrimSpace(in.Name)
	if c.Name == "" {
		return Company{}, fmt.Errorf("companies: name is required: %w", httpx.ErrValidation)
	}
	c.TradeName = strings.TrimSpace(in.TradeName)
	c.TaxID = strings.TrimSpace(in.TaxID)
	c.Email = strings.TrimSpace(in.Email)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = strings.TrimSpace(in.Address)
	c.LogoURL = strings.TrimSpace(in.LogoURL)
	c.UpdatedAt = s.now()
	updated, err := s.repo.UpdateCompany(ctx, c)
	if err != nil {
		return Company{}, err
	}
	s.record(ctx, actor, "company.update", "company", c.ID.String(), nil)
	return updated, nil
}

// Settings lists the company settings.
func (s *Service) Settings(ctx context.Context, actor shared.Principal) ([]Setting, error) {
	return s.repo.ListSettings(ctx, actor.CompanyID)
}

// PutSetting upserts one setting. The value must be valid JSON.
func (s *Service) PutSetting(ctx context.Context, actor shared.Principal, key string, in SettingInput) (Setting, error) {
	if !settingKeyPattern.MatchString(key) {
		return Setting{}, fmt.Errorf("companies: invalid setting key %q: %w", key, httpx.ErrValidation)
	}
	if len(in.Value) == 0 || !json.Valid(in.Value) {
		return Setting{}, fmt.Errorf("companies: setting value must be JSON: %w", httpx.ErrValidation)
	}
	saved, err := s.repo.UpsertSetting(ctx, actor.CompanyID, Setting{
		Key:         key,
		Value:       in.Value,
		Description: strings.TrimSpace(in.Description),
		UpdatedAt:   s.now(),
	})
	if err != nil {
		return Setting{}, err
	}
	s.record(ctx, actor, "setting.upsert", "system_setting", key, map[string]any{"value": json.RawMessage(saved.Value)})
	return saved, nil
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		CompanyID: actor.CompanyID,
		Action:    action,
		Entity:    entity,
		EntityID:  id,
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("companies audit", slog.String("action", action), slog.Any("error", err))
	}
}
