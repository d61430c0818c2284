package categories

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

// RepositoryPort is the storage the service needs.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Category, error)
	Get(ctx context.Context, id uuid.UUID) (Category, error)
	Insert(ctx context.Context, c Category) (Category, error)
	Update(ctx context.Context, c Category) (Category, error)
}

// UsageSource groups a company's entries per category.
type UsageSource interface {
	CategoryBreakdown(ctx context.Context, actor ledger.Actor, typ *ledger.EntryType, from, to *time.Time) ([]ledger.CategoryTotal, error)
}

// Most-used listing bounds.
const (
	DefaultMostUsedLimit = 5
	MaxMostUsedLimit     = 50
)

// AuditPort records category changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes category use cases scoped to the actor's company.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  ledger.Invalidator
	usage  UsageSource
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. audit and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache ledger.Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithUsage enables MostUsed.
func (s *Service) WithUsage(u UsageSource) {
	s.usage = u
}

// Stats counts the company's categories, deactivated ones included.
func (s *Service) Stats(ctx context.Context, actor shared.Principal) (Stats, error) {
	all, err := s.repo.List(ctx, ListFilter{CompanyID: actor.CompanyID, IncludeInactive: true})
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, c := range all {
		st.Total++
		if !c.IsActive {
			st.Inactive++
			continue
		}
		st.Active++
		switch c.Type {
		case ledger.EntryIncome:
			st.Income++
		case ledger.EntryExpense:
			st.Expense++
		}
	}
	return st, nil
}

// MostUsed ranks active categories by the number of entries filed under
// them, then by total amount and name. Unused categories rank last.
func (s *Service) MostUsed(ctx context.Context, actor shared.Principal, limit int) ([]Usage, error) {
	if s.usage == nil {
		return nil, fmt.Errorf("categories: usage source not configured: %w", httpx.ErrUnavailable)
	}
	if limit <= 0 {
		limit = DefaultMostUsedLimit
	}
	if limit > MaxMostUsedLimit {
		limit = MaxMostUsedLimit
	}
	active, err := s.repo.List(ctx, ListFilter{CompanyID: actor.CompanyID})
	if err != nil {
		return nil, err
	}
	totals, err := s.usage.CategoryBreakdown(ctx, ledger.Actor{UserID: actor.UserID, CompanyID: actor.CompanyID}, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]ledger.CategoryTotal, len(totals))
	for _, t := range totals {
		if t.CategoryID != nil {
			byID[*t.CategoryID] = t
		}
	}
	out := make([]Usage, 0, len(active))
	for _, c := range active {
		u := Usage{Category: c, Total: decimal.Zero}
		if t, ok := byID[c.ID]; ok {
			u.EntriesCount = t.Count
			u.Total = t.Total
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntriesCount != out[j].EntriesCount {
			return out[i].EntriesCount > out[j].EntriesCount
		}
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns active categories of the actor's company.
func (s *Service) List(ctx context.Context, actor shared.Principal, typ *ledger.EntryType) ([]Category, error) {
	return s.repo.List(ctx, ListFilter{CompanyID: actor.CompanyID, Type: typ})
}

// Get returns one category; foreign ids are reported as not found.
func (s *Service) Get(ctx context.Context, actor shared.Principal, id uuid.UUID) (Category, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if c.CompanyID != actor.CompanyID {
		return Category{}, ErrNotFound
	}
	return c, nil
}

// Create adds a category. A live category with the same name and type is a duplicate.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in CreateInput) (Category, error) {
	typ := ledger.EntryType(in.Type)
	name := strings.TrimSpace(in.Name)
	if name == "" || !typ.Valid() {
		return Category{}, fmt.Errorf("categories: name and type are required: %w", httpx.ErrValidation)
	}
	if err := s.ensureUnique(ctx, actor.CompanyID, uuid.Nil, name, typ); err != nil {
		return Category{}, err
	}
	color := in.Color
	if color == "" {
		color = DefaultColor
	}
	now := s.now()
	c, err := s.repo.Insert(ctx, Category{
		ID:          uuid.New(),
		CompanyID:   actor.CompanyID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Color:       color,
		Icon:        in.Icon,
		Type:        typ,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Category{}, err
	}
	s.after(ctx, actor, "category.create", c)
	return c, nil
}

// Update changes a category's metadata.
func (s *Service) Update(ctx context.Context, actor shared.Principal, id uuid.UUID, in UpdateInput) (Category, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return Category{}, err
	}
	if !c.IsActive {
		return Category{}, ErrNotFound
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Color != nil {
		c.Color = *in.Color
	}
	if in.Icon != nil {
		c.Icon = *in.Icon
	}
	if in.Type != nil {
		c.Type = ledger.EntryType(*in.Type)
	}
	if c.Name == "" || !c.Type.Valid() {
		return Category{}, fmt.Errorf("categories: name and type are required: %w", httpx.ErrValidation)
	}
	if err := s.ensureUnique(ctx, actor.CompanyID, c.ID, c.Name, c.Type); err != nil {
		return Category{}, err
	}
	c.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Category{}, err
	}
	s.after(ctx, actor, "category.update", updated)
	return updated, nil
}

// Delete deactivates a category. Entries keep referencing it.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, id uuid.UUID) error {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !c.IsActive {
		return ErrNotFound
	}
	c.IsActive = false
	c.UpdatedAt = s.now()
	if _, err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	s.after(ctx, actor, "category.delete", c)
	return nil
}

func (s *Service) ensureUnique(ctx context.Context, companyID, self uuid.UUID, name string, typ ledger.EntryType) error {
	existing, err := s.repo.List(ctx, ListFilter{CompanyID: companyID, Type: &typ})
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.ID != self && strings.EqualFold(c.Name, name) {
			return ErrDuplicate
		}
	}
	return nil
}

func (s *Service) after(ctx context.Context, actor shared.Principal, action string, c Category) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:   actor.UserID,
			CompanyID: actor.CompanyID,
			Action:    action,
			Entity:    "category",
			EntityID:  c.ID.String(),
			Meta:      map[string]any{"name": c.Name, "type": string(c.Type)},
			At:        s.now(),
		})
		if err != nil {
			s.logger.Warn("category audit", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("category cache bump", slog.Any("error", err))
		}
	}
}
