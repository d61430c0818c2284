// Package report builds the cash-book PDF reports and keeps a log of the
// reports generated per company.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

// Type selects what a report covers.
type Type string

const (
	TypeFinancial  Type = "financial"
	TypeEntries    Type = "entries"
	TypeExpenses   Type = "expenses"
	TypeAccounts   Type = "accounts"
	TypeCategories Type = "categories"
)

// Types lists every report type in display order.
var Types = []Type{TypeFinancial, TypeEntries, TypeExpenses, TypeAccounts, TypeCategories}

var (
	ErrUnknownType = fmt.Errorf("report: unknown type: %w", httpx.ErrNotFound)
	ErrNotFound    = fmt.Errorf("report: %w", httpx.ErrNotFound)
)

// Definition is the fixed heading of a report type.
type Definition struct {
	Title       string
	Description string
	Label       string
}

var definitions = map[Type]Definition{
	TypeFinancial:  {Title: "Relatório Financeiro Geral", Description: "Visão completa das finanças da empresa", Label: "FINANCEIRO"},
	TypeEntries:    {Title: "Relatório de Entradas", Description: "Análise detalhada das receitas", Label: "ENTRADAS"},
	TypeExpenses:   {Title: "Relatório de Saídas", Description: "Controle de gastos e despesas", Label: "SAÍDAS"},
	TypeAccounts:   {Title: "Relatório de Contas", Description: "Status e movimentação das contas", Label: "CONTAS"},
	TypeCategories: {Title: "Relatório por Categorias", Description: "Análise por categorias de transações", Label: "CATEGORIAS"},
}

// ParseType validates a report type.
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if _, ok := definitions[t]; !ok {
		return "", ErrUnknownType
	}
	return t, nil
}

// Definition returns the heading of t.
func (t Type) Definition() Definition {
	return definitions[t]
}

// Period bounds the data of a report. Nil ends are open.
type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Summary is the executive summary block. For category reports Total is the
// number of categories and Average the entries per category.
type Summary struct {
	Total   decimal.Decimal
	Count   int
	Average decimal.Decimal
	Money   bool
}

// Row is one detail line: three text cells and an amount.
type Row struct {
	Cells    [3]string
	Amount   decimal.Decimal
	Currency string
	Money    bool
	Negative bool
}

// Document is everything the template needs.
type Document struct {
	Type        Type
	Definition  Definition
	Company     string
	Period      Period
	GeneratedAt time.Time
	GeneratedBy string
	Summary     Summary
	Columns     [4]string
	Rows        []Row
	Filters     []string
}

// FileName is the download name of the document.
func (d Document) FileName() string {
	return fmt.Sprintf("relatorio-%s-%s.pdf", d.Type, d.GeneratedAt.Format("02-01-2006-15-04-05"))
}

// GeneratedReport is one row of the generated reports log.
type GeneratedReport struct {
	ID          uuid.UUID         `json:"id"`
	CompanyID   uuid.UUID         `json:"company_id"`
	UserID      uuid.UUID         `json:"user_id"`
	Title       string            `json:"title"`
	Type        Type              `json:"type"`
	FileName    string            `json:"file_name"`
	Filters     map[string]string `json:"filters"`
	GeneratedAt time.Time         `json:"generated_at"`
	Available   bool              `json:"available"`
}
