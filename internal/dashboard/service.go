// Package dashboard computes the cash-book KPIs shown on the home screen.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/conectell/livrocaixa/internal/ledger"
)

// RecentEntries is how many of the latest entries a summary carries.
const RecentEntries = 5

// LedgerPort is the read side of the ledger the dashboard aggregates.
type LedgerPort interface {
	EntryStatsFor(ctx context.Context, actor ledger.Actor, from, to *time.Time) (ledger.EntryStats, error)
	CategoryBreakdown(ctx context.Context, actor ledger.Actor, typ *ledger.EntryType, from, to *time.Time) ([]ledger.CategoryTotal, error)
	AccountStats(ctx context.Context, actor ledger.Actor) (ledger.AccountStats, error)
	ListEntries(ctx context.Context, actor ledger.Actor, filter ledger.EntryFilter) ([]ledger.EntryView, error)
}

// Period bounds a summary. Nil ends are open.
type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Summary is the dashboard payload.
type Summary struct {
	Period     Period                 `json:"period"`
	Entries    ledger.EntryStats      `json:"entries"`
	Categories []ledger.CategoryTotal `json:"categories"`
	Accounts   ledger.AccountStats    `json:"accounts"`
	Recent     []ledger.EntryView     `json:"recent"`
}

// Service assembles summaries through the cache.
type Service struct {
	ledger LedgerPort
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService wires the ledger with a Cache helper.
func NewService(ledger LedgerPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, cache: cache, logger: logger}
}

// Summary returns the KPIs of the actor's company for the period.
func (s *Service) Summary(ctx context.Context, actor ledger.Actor, period Period) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary", actor.CompanyID.String(), dayToken(period.From), dayToken(period.To))
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
		return s.compute(ctx, actor, period)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var out Summary
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.compute(ctx, actor, period)
		})
		return out, err
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func (s *Service) compute(ctx context.Context, actor ledger.Actor, period Period) (Summary, error) {
	out := Summary{Period: period}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.ledger.EntryStatsFor(ctx, actor, period.From, period.To)
		out.Entries = stats
		return err
	})
	g.Go(func() error {
		rows, err := s.ledger.CategoryBreakdown(ctx, actor, nil, period.From, period.To)
		out.Categories = rows
		return err
	})
	g.Go(func() error {
		stats, err := s.ledger.AccountStats(ctx, actor)
		out.Accounts = stats
		return err
	})
	g.Go(func() error {
		entries, err := s.ledger.ListEntries(ctx, actor, ledger.EntryFilter{From: period.From, To: period.To})
		if err != nil {
			return err
		}
		out.Recent = ledger.FilterEntries(entries, ledger.EntryQuery{SortBy: ledger.SortByDate, Descending: true, PerPage: RecentEntries}).Items
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if out.Categories == nil {
		out.Categories = []ledger.CategoryTotal{}
	}
	return out, nil
}

func dayToken(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("20060102")
}
