package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/shared"
)

// DefaultListLimit caps the generated reports listing.
const DefaultListLimit = 50

// LedgerPort loads the data reports are built from.
type LedgerPort interface {
	ListEntries(ctx context.Context, actor ledger.Actor, filter ledger.EntryFilter) ([]ledger.EntryView, error)
	ListAccounts(ctx context.Context, actor ledger.Actor, filter ledger.AccountFilter) ([]ledger.Account, error)
}

// Converter turns HTML into PDF.
type Converter interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// RepositoryPort logs generated reports.
type RepositoryPort interface {
	Insert(ctx context.Context, g GeneratedReport) error
	Get(ctx context.Context, companyID, id uuid.UUID) (GeneratedReport, error)
	List(ctx context.Context, companyID uuid.UUID, limit int) ([]GeneratedReport, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) (bool, error)
}

// StorePort keeps PDFs of asynchronously generated reports.
type StorePort interface {
	Put(ctx context.Context, id uuid.UUID, pdf []byte) error
	Get(ctx context.Context, id uuid.UUID) ([]byte, error)
	Has(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditPort records report generation.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Request describes one report run. It doubles as the async job payload.
type Request struct {
	ID        uuid.UUID  `json:"id"`
	Type      Type       `json:"type"`
	CompanyID uuid.UUID  `json:"company_id"`
	UserID    uuid.UUID  `json:"user_id"`
	UserName  string     `json:"user_name"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

func (r Request) actor() ledger.Actor {
	return ledger.Actor{UserID: r.UserID, CompanyID: r.CompanyID}
}

// Options wires a Service.
type Options struct {
	Ledger    LedgerPort
	Converter Converter
	Renderer  *Renderer
	Repo      RepositoryPort
	Store     StorePort
	Audit     AuditPort
	Currency  string
	Logger    *slog.Logger
}

// Service generates reports.
type Service struct {
	ledger    LedgerPort
	converter Converter
	renderer  *Renderer
	repo      RepositoryPort
	store     StorePort
	audit     AuditPort
	currency  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance. Store and Audit may be nil.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Currency == "" {
		opts.Currency = "BRL"
	}
	return &Service{
		ledger:    opts.Ledger,
		converter: opts.Converter,
		renderer:  opts.Renderer,
		repo:      opts.Repo,
		store:     opts.Store,
		audit:     opts.Audit,
		currency:  opts.Currency,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Generate builds, renders and converts the report, then logs it.
func (s *Service) Generate(ctx context.Context, req Request) (GeneratedReport, []byte, error) {
	g, pdf, err := s.render(ctx, req)
	if err != nil {
		return GeneratedReport{}, nil, err
	}
	if err := s.log(ctx, req, g); err != nil {
		return GeneratedReport{}, nil, err
	}
	return g, pdf, nil
}

// GenerateAndStore renders the report and keeps the PDF for later download.
// The PDF is stored before the log row is written so a failed attempt can be
// retried with the same report id.
func (s *Service) GenerateAndStore(ctx context.Context, req Request) (GeneratedReport, error) {
	g, pdf, err := s.render(ctx, req)
	if err != nil {
		return GeneratedReport{}, err
	}
	if s.store != nil {
		if err := s.store.Put(ctx, g.ID, pdf); err != nil {
			return GeneratedReport{}, err
		}
		g.Available = true
	}
	if err := s.log(ctx, req, g); err != nil {
		return GeneratedReport{}, err
	}
	return g, nil
}

func (s *Service) log(ctx context.Context, req Request, g GeneratedReport) error {
	if err := s.repo.Insert(ctx, g); err != nil {
		return err
	}
	s.record(ctx, req, g)
	return nil
}

func (s *Service) render(ctx context.Context, req Request) (GeneratedReport, []byte, error) {
	if _, err := ParseType(string(req.Type)); err != nil {
		return GeneratedReport{}, nil, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	in := Input{
		GeneratedBy: req.UserName,
		Period:      Period{From: req.From, To: req.To},
		Currency:    s.currency,
		Now:         s.now(),
	}
	var err error
	if req.Type == TypeAccounts {
		in.Accounts, err = s.ledger.ListAccounts(ctx, req.actor(), ledger.AccountFilter{})
	} else {
		in.Entries, err = s.ledger.ListEntries(ctx, req.actor(), ledger.EntryFilter{From: req.From, To: req.To})
	}
	if err != nil {
		return GeneratedReport{}, nil, err
	}
	doc := Build(req.Type, in)
	html, err := s.renderer.HTML(doc)
	if err != nil {
		return GeneratedReport{}, nil, err
	}
	pdf, err := s.converter.RenderHTML(ctx, html)
	if err != nil {
		return GeneratedReport{}, nil, err
	}
	g := GeneratedReport{
		ID:          req.ID,
		CompanyID:   req.CompanyID,
		UserID:      req.UserID,
		Title:       doc.Definition.Title,
		Type:        req.Type,
		FileName:    doc.FileName(),
		Filters:     filterMap(req),
		GeneratedAt: in.Now,
	}
	return g, pdf, nil
}

// List returns the company's generated reports and whether each PDF is
// still downloadable.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]GeneratedReport, error) {
	items, err := s.repo.List(ctx, companyID, DefaultListLimit)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return items, nil
	}
	for i := range items {
		ok, err := s.store.Has(ctx, items[i].ID)
		if err != nil {
			s.logger.Warn("report store lookup", slog.Any("error", err))
			continue
		}
		items[i].Available = ok
	}
	return items, nil
}

// Download returns a stored PDF of the company.
func (s *Service) Download(ctx context.Context, companyID, id uuid.UUID) (GeneratedReport, []byte, error) {
	g, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return GeneratedReport{}, nil, err
	}
	if s.store == nil {
		return GeneratedReport{}, nil, ErrNotFound
	}
	pdf, err := s.store.Get(ctx, id)
	if err != nil {
		return GeneratedReport{}, nil, err
	}
	g.Available = true
	return g, pdf, nil
}

// Delete removes a report from the log along with any stored PDF.
func (s *Service) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	ok, err := s.repo.Delete(ctx, companyID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Warn("report store delete", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, req Request, g GeneratedReport) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   req.UserID,
		CompanyID: req.CompanyID,
		Action:    "report.generate",
		Entity:    "generated_report",
		EntityID:  g.ID.String(),
		Meta:      map[string]any{"type": string(g.Type)},
		At:        g.GeneratedAt,
	})
	if err != nil {
		s.logger.Warn("report audit", slog.Any("error", err))
	}
}

func filterMap(req Request) map[string]string {
	out := map[string]string{}
	if req.From != nil {
		out["from"] = req.From.Format(time.DateOnly)
	}
	if req.To != nil {
		out["to"] = req.To.Format(time.DateOnly)
	}
	return out
}
