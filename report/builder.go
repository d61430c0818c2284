package report

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/ledger"
)

const dateLayout = "02/01/2006"

// Input is the already-loaded data a report is built from.
type Input struct {
	Company     string
	GeneratedBy string
	Period      Period
	Entries     []ledger.EntryView
	Accounts    []ledger.Account
	Currency    string
	Now         time.Time
}

var accountTypeLabels = map[ledger.AccountType]string{
	ledger.AccountChecking:   "Conta Corrente",
	ledger.AccountSavings:    "Poupança",
	ledger.AccountCredit:     "Cartão de Crédito",
	ledger.AccountInvestment: "Investimento",
	ledger.AccountCash:       "Dinheiro",
}

// Build assembles the document of type t.
func Build(t Type, in Input) Document {
	doc := Document{
		Type:        t,
		Definition:  t.Definition(),
		Company:     in.Company,
		Period:      in.Period,
		GeneratedAt: in.Now,
		GeneratedBy: in.GeneratedBy,
		Filters:     describeFilters(in.Period),
	}
	switch t {
	case TypeAccounts:
		buildAccounts(&doc, in.Accounts)
	case TypeCategories:
		buildCategories(&doc, in.Entries, in.Currency)
	default:
		buildEntries(&doc, entriesFor(t, in.Entries), in.Currency)
	}
	return doc
}

func entriesFor(t Type, entries []ledger.EntryView) []ledger.EntryView {
	var want ledger.EntryType
	switch t {
	case TypeEntries:
		want = ledger.EntryIncome
	case TypeExpenses:
		want = ledger.EntryExpense
	default:
		return entries
	}
	out := make([]ledger.EntryView, 0, len(entries))
	for _, e := range entries {
		if e.Type == want {
			out = append(out, e)
		}
	}
	return out
}

func buildEntries(doc *Document, entries []ledger.EntryView, currency string) {
	doc.Columns = [4]string{"Data", "Descrição", "Categoria", "Valor"}
	sorted := append([]ledger.EntryView(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
	total := decimal.Zero
	for _, e := range sorted {
		total = total.Add(e.Amount)
		category := e.Category.Name
		if category == "" {
			category = ledger.UncategorizedName
		}
		doc.Rows = append(doc.Rows, Row{
			Cells:    [3]string{e.Date.Format(dateLayout), e.Description, category},
			Amount:   e.Amount,
			Currency: currency,
			Money:    true,
			Negative: e.Type == ledger.EntryExpense,
		})
	}
	doc.Summary = summarize(total, len(sorted), true)
}

func buildAccounts(doc *Document, accounts []ledger.Account) {
	doc.Columns = [4]string{"Conta", "Tipo", "Moeda", "Saldo"}
	total := decimal.Zero
	count := 0
	for _, acc := range accounts {
		if !acc.IsActive {
			continue
		}
		count++
		total = total.Add(acc.Balance)
		label, ok := accountTypeLabels[acc.Type]
		if !ok {
			label = string(acc.Type)
		}
		doc.Rows = append(doc.Rows, Row{
			Cells:    [3]string{acc.Name, label, acc.Currency},
			Amount:   acc.Balance.Abs(),
			Currency: acc.Currency,
			Money:    true,
			Negative: acc.Balance.IsNegative(),
		})
	}
	doc.Summary = summarize(total, count, true)
}

func buildCategories(doc *Document, entries []ledger.EntryView, currency string) {
	doc.Columns = [4]string{"Categoria", "Lançamentos", "Participação", "Total movimentado"}
	groups := ledger.GroupByCategory(entries)
	for _, g := range groups {
		share := decimal.NewFromInt(int64(g.Count)).Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(len(entries))))
		doc.Rows = append(doc.Rows, Row{
			Cells:    [3]string{g.Name, strconv.Itoa(g.Count), strings.Replace(share.StringFixed(1), ".", ",", 1) + "%"},
			Amount:   g.Total,
			Currency: currency,
			Money:    true,
		})
	}
	doc.Summary = Summary{
		Total:   decimal.NewFromInt(int64(len(groups))),
		Count:   len(entries),
		Average: decimal.Zero,
	}
	if len(groups) > 0 {
		doc.Summary.Average = decimal.NewFromInt(int64(len(entries))).Div(decimal.NewFromInt(int64(len(groups)))).Round(2)
	}
}

func summarize(total decimal.Decimal, count int, money bool) Summary {
	s := Summary{Total: total, Count: count, Average: decimal.Zero, Money: money}
	if count > 0 {
		s.Average = total.Div(decimal.NewFromInt(int64(count))).Round(2)
	}
	return s
}

func describeFilters(p Period) []string {
	var out []string
	if p.From != nil {
		out = append(out, "Data inicial: "+p.From.Format(dateLayout))
	}
	if p.To != nil {
		out = append(out, "Data final: "+p.To.Format(dateLayout))
	}
	return out
}
