package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// ErrCompanyRequired rejects timelines that are not scoped to a company.
var ErrCompanyRequired = fmt.Errorf("audit: company required: %w", httpx.ErrValidation)

// RepositoryPort is the data access used by Service.
type RepositoryPort interface {
	Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error)
	All(ctx context.Context, f TimelineFilters) ([]TimelineRow, error)
}

// Service reads the audit trail.
type Service struct {
	repo RepositoryPort
}

// NewService builds an audit timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline loads one page of events.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	if filters.CompanyID == uuid.Nil {
		return Result{}, ErrCompanyRequired
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export loads every event matching filters.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if filters.CompanyID == uuid.Nil {
		return nil, ErrCompanyRequired
	}
	return s.repo.All(ctx, filters)
}
