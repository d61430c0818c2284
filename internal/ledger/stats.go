package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UncategorizedName labels entries without a category in breakdowns.
const UncategorizedName = "Sem categoria"

// EntryStats aggregates income and expense over a set of entries.
type EntryStats struct {
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalExpense       decimal.Decimal `json:"total_expense"`
	NetIncome          decimal.Decimal `json:"net_income"`
	EntriesCount       int             `json:"entries_count"`
	AverageTransaction decimal.Decimal `json:"avg_transaction"`
}

// CategoryTotal is one row of a per-category breakdown.
type CategoryTotal struct {
	CategoryID *uuid.UUID      `json:"category_id"`
	Name       string          `json:"name"`
	Color      string          `json:"color,omitempty"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
}

// TypeStats summarises accounts of one type.
type TypeStats struct {
	Count   int             `json:"count"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountStats summarises a company's active accounts.
type AccountStats struct {
	TotalBalance  decimal.Decimal           `json:"total_balance"`
	TotalAccounts int                       `json:"total_accounts"`
	ByType        map[AccountType]TypeStats `json:"accounts_by_type"`
}

// ComputeEntryStats sums income and expense. The average is the mean
// absolute amount per entry.
func ComputeEntryStats(entries []EntryView) EntryStats {
	stats := EntryStats{
		TotalIncome:        decimal.Zero,
		TotalExpense:       decimal.Zero,
		NetIncome:          decimal.Zero,
		AverageTransaction: decimal.Zero,
	}
	for _, e := range entries {
		switch e.Type {
		case EntryIncome:
			stats.TotalIncome = stats.TotalIncome.Add(e.Amount)
		case EntryExpense:
			stats.TotalExpense = stats.TotalExpense.Add(e.Amount)
		}
	}
	stats.EntriesCount = len(entries)
	stats.NetIncome = stats.TotalIncome.Sub(stats.TotalExpense)
	if stats.EntriesCount > 0 {
		stats.AverageTransaction = stats.TotalIncome.Add(stats.TotalExpense).
			Div(decimal.NewFromInt(int64(stats.EntriesCount))).Round(2)
	}
	return stats
}

// GroupByCategory breaks entries down per category, largest total first.
func GroupByCategory(entries []EntryView) []CategoryTotal {
	index := make(map[uuid.UUID]int)
	var rows []CategoryTotal
	for _, e := range entries {
		key := e.CategoryID
		i, ok := index[key]
		if !ok {
			row := CategoryTotal{
				Name:    UncategorizedName,
				Color:   "#6B7280",
				Income:  decimal.Zero,
				Expense: decimal.Zero,
				Total:   decimal.Zero,
			}
			if key != uuid.Nil {
				id := key
				row.CategoryID = &id
				row.Name = e.Category.Name
				if e.Category.Color != "" {
					row.Color = e.Category.Color
				}
			}
			rows = append(rows, row)
			i = len(rows) - 1
			index[key] = i
		}
		row := &rows[i]
		if e.Type == EntryIncome {
			row.Income = row.Income.Add(e.Amount)
		} else {
			row.Expense = row.Expense.Add(e.Amount)
		}
		row.Total = row.Total.Add(e.Amount)
		row.Count++
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Total.Cmp(rows[j].Total); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// ComputeAccountStats totals active accounts overall and per type.
func ComputeAccountStats(accounts []Account) AccountStats {
	stats := AccountStats{TotalBalance: decimal.Zero, ByType: make(map[AccountType]TypeStats)}
	for _, acc := range accounts {
		if !acc.IsActive {
			continue
		}
		stats.TotalAccounts++
		stats.TotalBalance = stats.TotalBalance.Add(acc.Balance)
		ts := stats.ByType[acc.Type]
		if ts.Count == 0 {
			ts.Balance = decimal.Zero
		}
		ts.Count++
		ts.Balance = ts.Balance.Add(acc.Balance)
		stats.ByType[acc.Type] = ts
	}
	return stats
}

// EntryStatsFor aggregates the actor's entries within an optional date range.
func (s *Service) EntryStatsFor(ctx context.Context, actor Actor, from, to *time.Time) (EntryStats, error) {
	entries, err := s.ListEntries(ctx, actor, EntryFilter{From: from, To: to})
	if err != nil {
		return EntryStats{}, err
	}
	return ComputeEntryStats(entries), nil
}

// CategoryBreakdown groups the actor's entries per category, optionally
// restricted to one entry type and date range.
func (s *Service) CategoryBreakdown(ctx context.Context, actor Actor, typ *EntryType, from, to *time.Time) ([]CategoryTotal, error) {
	entries, err := s.ListEntries(ctx, actor, EntryFilter{Type: typ, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return GroupByCategory(entries), nil
}
