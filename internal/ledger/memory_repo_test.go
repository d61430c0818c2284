package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/conectell/livrocaixa/internal/shared"
)

// memoryRepo is an optimistic in-memory store. Each transaction works on a
// private snapshot and commits only if the rows it wrote or locked are still
// at the revision it saw, which mirrors the serialization failures Postgres
// raises under repeatable read.
type memoryRepo struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]Account
	accountRev  map[uuid.UUID]int64
	categories  map[uuid.UUID]Category
	entries     map[uuid.UUID]Entry
	entryRev    map[uuid.UUID]int64
	postings    []Posting
	failApplies int
	commits     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:   map[uuid.UUID]Account{},
		accountRev: map[uuid.UUID]int64{},
		categories: map[uuid.UUID]Category{},
		entries:    map[uuid.UUID]Entry{},
		entryRev:   map[uuid.UUID]int64{},
	}
}

// failNextApplies makes the next n balance updates lose their race.
func (r *memoryRepo) failNextApplies(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failApplies = n
}

func (r *memoryRepo) addCategory(cat Category) Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cat.ID == uuid.Nil {
		cat.ID = uuid.New()
	}
	r.categories[cat.ID] = cat
	return cat
}

func (r *memoryRepo) setBalance(id uuid.UUID, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc := r.accounts[id]
	acc.Balance = balance
	r.accounts[id] = acc
}

func (r *memoryRepo) postingsFor(id uuid.UUID) []Posting {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Posting
	for _, p := range r.postings {
		if p.AccountID == id {
			out = append(out, p)
		}
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := r.begin()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.commit(tx)
}

func (r *memoryRepo) begin() *memoryTx {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		repo:         r,
		accounts:     make(map[uuid.UUID]Account, len(r.accounts)),
		accountRev:   make(map[uuid.UUID]int64, len(r.accountRev)),
		categories:   make(map[uuid.UUID]Category, len(r.categories)),
		entries:      make(map[uuid.UUID]Entry, len(r.entries)),
		entryRev:     make(map[uuid.UUID]int64, len(r.entryRev)),
		postings:     append([]Posting(nil), r.postings...),
		basePostings: len(r.postings),
		touchedAcc:   map[uuid.UUID]bool{},
		touchedEnt:   map[uuid.UUID]bool{},
		lockedEnt:    map[uuid.UUID]bool{},
	}
	for k, v := range r.accounts {
		tx.accounts[k] = v
	}
	for k, v := range r.accountRev {
		tx.accountRev[k] = v
	}
	for k, v := range r.categories {
		tx.categories[k] = v
	}
	for k, v := range r.entries {
		tx.entries[k] = v
	}
	for k, v := range r.entryRev {
		tx.entryRev[k] = v
	}
	return tx
}

func (r *memoryRepo) commit(tx *memoryTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range tx.touchedAcc {
		if r.accountRev[id] != tx.accountRev[id] {
			return conflict("could not serialize access to account")
		}
	}
	for id := range tx.touchedEnt {
		if r.entryRev[id] != tx.entryRev[id] {
			return conflict("could not serialize access to entry")
		}
	}
	for id := range tx.lockedEnt {
		if r.entryRev[id] != tx.entryRev[id] {
			return conflict("could not serialize access to entry")
		}
	}
	for id := range tx.touchedAcc {
		r.accounts[id] = tx.accounts[id]
		r.accountRev[id]++
	}
	for id := range tx.touchedEnt {
		if e, ok := tx.entries[id]; ok {
			r.entries[id] = e
		} else {
			delete(r.entries, id)
		}
		r.entryRev[id]++
	}
	r.postings = append(r.postings, tx.postings[tx.basePostings:]...)
	r.commits++
	return nil
}

func (r *memoryRepo) GetAccount(_ context.Context, id uuid.UUID) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, pgx.ErrNoRows
	}
	return acc, nil
}

func (r *memoryRepo) ListAccounts(_ context.Context, filter AccountFilter) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Account
	for _, acc := range r.accounts {
		if filter.CompanyID != nil && acc.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.Type != nil && acc.Type != *filter.Type {
			continue
		}
		if !filter.IncludeInactive && !acc.IsActive {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetEntry(_ context.Context, id uuid.UUID) (EntryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return EntryView{}, pgx.ErrNoRows
	}
	return r.view(e), nil
}

func (r *memoryRepo) ListEntries(_ context.Context, filter EntryFilter) ([]EntryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	search := strings.ToLower(filter.Search)
	var out []EntryView
	for _, e := range r.entries {
		switch {
		case e.CompanyID != filter.CompanyID:
			continue
		case filter.Type != nil && e.Type != *filter.Type:
			continue
		case filter.CategoryID != nil && e.CategoryID != *filter.CategoryID:
			continue
		case filter.AccountID != nil && e.AccountID != *filter.AccountID:
			continue
		case filter.From != nil && e.Date.Before(*filter.From):
			continue
		case filter.To != nil && e.Date.After(*filter.To):
			continue
		case filter.RecurringOnly && !e.IsRecurring:
			continue
		case search != "" && !strings.Contains(strings.ToLower(e.Description+" "+e.Notes), search):
			continue
		}
		out = append(out, r.view(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) ListPostings(_ context.Context, accountID uuid.UUID, limit int) ([]Posting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Posting
	for i := len(r.postings) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.postings[i].AccountID == accountID {
			out = append(out, r.postings[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) view(e Entry) EntryView {
	cat := r.categories[e.CategoryID]
	acc := r.accounts[e.AccountID]
	return EntryView{
		Entry:    e,
		Category: CategoryRef{ID: cat.ID, Name: cat.Name, Color: cat.Color, Icon: cat.Icon},
		Account:  AccountRef{ID: acc.ID, Name: acc.Name, Type: acc.Type},
	}
}

type memoryTx struct {
	repo         *memoryRepo
	accounts     map[uuid.UUID]Account
	accountRev   map[uuid.UUID]int64
	categories   map[uuid.UUID]Category
	entries      map[uuid.UUID]Entry
	entryRev     map[uuid.UUID]int64
	postings     []Posting
	basePostings int
	touchedAcc   map[uuid.UUID]bool
	touchedEnt   map[uuid.UUID]bool
	lockedEnt    map[uuid.UUID]bool
}

func (t *memoryTx) GetAccount(_ context.Context, id uuid.UUID) (Account, error) {
	acc, ok := t.accounts[id]
	if !ok {
		return Account{}, pgx.ErrNoRows
	}
	return acc, nil
}

func (t *memoryTx) GetCategory(_ context.Context, id uuid.UUID) (Category, error) {
	cat, ok := t.categories[id]
	if !ok {
		return Category{}, pgx.ErrNoRows
	}
	return cat, nil
}

func (t *memoryTx) InsertAccount(_ context.Context, acc Account) (Account, error) {
	t.accounts[acc.ID] = acc
	t.touchedAcc[acc.ID] = true
	return acc, nil
}

func (t *memoryTx) UpdateAccount(_ context.Context, acc Account) (Account, error) {
	cur, ok := t.accounts[acc.ID]
	if !ok {
		return Account{}, pgx.ErrNoRows
	}
	cur.Name = acc.Name
	cur.Type = acc.Type
	cur.Description = acc.Description
	cur.Currency = acc.Currency
	cur.IsActive = acc.IsActive
	cur.UpdatedAt = acc.UpdatedAt
	t.accounts[acc.ID] = cur
	t.touchedAcc[acc.ID] = true
	return cur, nil
}

func (t *memoryTx) ApplyDelta(_ context.Context, accountID uuid.UUID, expectedVersion int64, delta decimal.Decimal) (Account, error) {
	t.repo.mu.Lock()
	forced := t.repo.failApplies > 0
	if forced {
		t.repo.failApplies--
	}
	t.repo.mu.Unlock()
	acc, ok := t.accounts[accountID]
	if forced || !ok || acc.Version != expectedVersion {
		return Account{}, conflict("account " + accountID.String() + " changed since it was read")
	}
	acc.Balance = acc.Balance.Add(delta)
	acc.Version++
	t.accounts[accountID] = acc
	t.touchedAcc[accountID] = true
	return acc, nil
}

func (t *memoryTx) InsertPosting(_ context.Context, p Posting) error {
	t.postings = append(t.postings, p)
	return nil
}

func (t *memoryTx) SumPostings(_ context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range t.postings {
		if p.AccountID == accountID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (t *memoryTx) GetEntryForUpdate(_ context.Context, id uuid.UUID) (Entry, error) {
	e, ok := t.entries[id]
	if !ok {
		return Entry{}, pgx.ErrNoRows
	}
	t.lockedEnt[id] = true
	return e, nil
}

func (t *memoryTx) InsertEntry(_ context.Context, e Entry) (Entry, error) {
	t.entries[e.ID] = e
	t.touchedEnt[e.ID] = true
	return e, nil
}

func (t *memoryTx) UpdateEntry(_ context.Context, e Entry) (Entry, error) {
	if _, ok := t.entries[e.ID]; !ok {
		return Entry{}, pgx.ErrNoRows
	}
	t.entries[e.ID] = e
	t.touchedEnt[e.ID] = true
	return e, nil
}

func (t *memoryTx) DeleteEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := t.entries[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(t.entries, id)
	t.touchedEnt[id] = true
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingInvalidator) Bump(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}
