package ledger

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/conectell/livrocaixa/internal/shared"
)

// SortKey selects the field entry listings are ordered by.
type SortKey string

const (
	SortByDate        SortKey = "date"
	SortByAmount      SortKey = "amount"
	SortByDescription SortKey = "description"
)

// DefaultEntriesPerPage is the page size of entry and expense listings.
const DefaultEntriesPerPage = 10

// EntryQuery describes an in-memory filter, sort and page over entries.
type EntryQuery struct {
	Search     string
	Type       *EntryType
	CategoryID *uuid.UUID
	AccountID  *uuid.UUID
	From       *time.Time
	To         *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	SortBy     SortKey
	Descending bool
	Page       int
	PerPage    int
}

// FilterEntries filters, sorts and slices entries. It never fails; unknown
// sort keys fall back to date. Ties keep their input order.
func FilterEntries(entries []EntryView, q EntryQuery) shared.Page[EntryView] {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		if matchesEntry(e, q, search) {
			matched = append(matched, e)
		}
	}

	less := entryLess(q.SortBy)
	sort.SliceStable(matched, func(i, j int) bool {
		if q.Descending {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultEntriesPerPage
	}
	return shared.Paginate(matched, q.Page, perPage)
}

func matchesEntry(e EntryView, q EntryQuery, search string) bool {
	if search != "" &&
		!strings.Contains(strings.ToLower(e.Description), search) &&
		!strings.Contains(strings.ToLower(e.Category.Name), search) {
		return false
	}
	if q.Type != nil && e.Type != *q.Type {
		return false
	}
	if q.CategoryID != nil && e.CategoryID != *q.CategoryID {
		return false
	}
	if q.AccountID != nil && e.AccountID != *q.AccountID {
		return false
	}
	day := civilDay(e.Date)
	if q.From != nil && day < civilDay(*q.From) {
		return false
	}
	if q.To != nil && day > civilDay(*q.To) {
		return false
	}
	if q.MinAmount != nil && e.Amount.LessThan(*q.MinAmount) {
		return false
	}
	if q.MaxAmount != nil && e.Amount.GreaterThan(*q.MaxAmount) {
		return false
	}
	return true
}

func entryLess(key SortKey) func(a, b EntryView) bool {
	switch key {
	case SortByAmount:
		return func(a, b EntryView) bool { return a.Amount.LessThan(b.Amount) }
	case SortByDescription:
		col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
		return func(a, b EntryView) bool { return col.CompareString(a.Description, b.Description) < 0 }
	default:
		return func(a, b EntryView) bool { return civilDay(a.Date) < civilDay(b.Date) }
	}
}

// civilDay reduces t to a comparable yyyymmdd number in its own location.
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// ParseEntryQuery reads listing parameters from a query string. The value
// "all" for type or category means no filter.
func ParseEntryQuery(v url.Values) (EntryQuery, error) {
	q := EntryQuery{
		Search:     v.Get("search"),
		SortBy:     SortByDate,
		Descending: true,
	}
	if raw := v.Get("type"); raw != "" && raw != "all" {
		t := EntryType(raw)
		if !t.Valid() {
			return EntryQuery{}, invalid("type", "must be income or expense")
		}
		q.Type = &t
	}
	var err error
	if q.CategoryID, err = parseOptionalUUID(v, "category"); err != nil {
		return EntryQuery{}, err
	}
	if q.AccountID, err = parseOptionalUUID(v, "account"); err != nil {
		return EntryQuery{}, err
	}
	if q.From, err = parseOptionalDate(v, "from"); err != nil {
		return EntryQuery{}, err
	}
	if q.To, err = parseOptionalDate(v, "to"); err != nil {
		return EntryQuery{}, err
	}
	if q.MinAmount, err = parseOptionalDecimal(v, "min_amount"); err != nil {
		return EntryQuery{}, err
	}
	if q.MaxAmount, err = parseOptionalDecimal(v, "max_amount"); err != nil {
		return EntryQuery{}, err
	}
	switch key := SortKey(v.Get("sort")); key {
	case "":
	case SortByDate, SortByAmount, SortByDescription:
		q.SortBy = key
	default:
		return EntryQuery{}, invalid("sort", "must be date, amount or description")
	}
	switch v.Get("order") {
	case "", "desc":
	case "asc":
		q.Descending = false
	default:
		return EntryQuery{}, invalid("order", "must be asc or desc")
	}
	if raw := v.Get("page"); raw != "" {
		if q.Page, err = strconv.Atoi(raw); err != nil {
			return EntryQuery{}, invalid("page", "must be a number")
		}
	}
	if raw := v.Get("per_page"); raw != "" {
		if q.PerPage, err = strconv.Atoi(raw); err != nil || q.PerPage > 100 {
			return EntryQuery{}, invalid("per_page", "must be a number up to 100")
		}
	}
	return q, nil
}

func parseOptionalUUID(v url.Values, key string) (*uuid.UUID, error) {
	raw := v.Get(key)
	if raw == "" || raw == "all" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalid(key, "must be a uuid")
	}
	return &id, nil
}

func parseOptionalDate(v url.Values, key string) (*time.Time, error) {
	raw := v.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, invalid(key, "must be a YYYY-MM-DD date")
	}
	return &t, nil
}

func parseOptionalDecimal(v url.Values, key string) (*decimal.Decimal, error) {
	raw := v.Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalid(key, "must be a number")
	}
	return &d, nil
}
