package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
)

type fixture struct {
	repo    *memoryRepo
	audit   *memoryAudit
	cache   *countingInvalidator
	metrics *Metrics
	svc     *Service
	actor   Actor
	income  Category
	expense Category
}

func newFixture(t *testing.T, retry RetryPolicy) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	cache := &countingInvalidator{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(repo, audit, Options{Retry: retry, Metrics: metrics, Invalidator: cache})
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) })
	actor := Actor{UserID: uuid.New(), CompanyID: uuid.New()}
	return &fixture{
		repo:    repo,
		audit:   audit,
		cache:   cache,
		metrics: metrics,
		svc:     svc,
		actor:   actor,
		income:  repo.addCategory(Category{CompanyID: actor.CompanyID, Name: "Vendas", Type: EntryIncome, IsActive: true}),
		expense: repo.addCategory(Category{CompanyID: actor.CompanyID, Name: "Aluguel", Type: EntryExpense, IsActive: true}),
	}
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) openAccount(t *testing.T, name, opening string) Account {
	t.Helper()
	acc, err := f.svc.CreateAccount(context.Background(), f.actor, AccountInput{
		Name:           name,
		Type:           AccountChecking,
		OpeningBalance: dec(opening),
	})
	require.NoError(t, err)
	return acc
}

func (f *fixture) post(t *testing.T, acc Account, typ EntryType, amount string) Entry {
	t.Helper()
	cat := f.income
	if typ == EntryExpense {
		cat = f.expense
	}
	e, err := f.svc.PostEntry(context.Background(), f.actor, EntryInput{
		Description: "lançamento",
		Amount:      dec(amount),
		Type:        typ,
		CategoryID:  cat.ID,
		AccountID:   acc.ID,
		Date:        day(2024, 3, 1),
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	acc, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func (f *fixture) requireBalanced(t *testing.T, id uuid.UUID) {
	t.Helper()
	rec, err := f.svc.Reconcile(context.Background(), f.actor, id)
	require.NoError(t, err)
	require.True(t, rec.Balanced, "drift %s", rec.Drift)
}

func TestWorkedExample(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")

	e1 := f.post(t, a, EntryIncome, "100")
	require.True(t, f.balance(t, a.ID).Equal(dec("100")))

	forty := dec("40")
	_, err := f.svc.UpdateEntry(ctx, f.actor, e1.ID, EntryPatch{Amount: &forty})
	require.NoError(t, err)
	require.True(t, f.balance(t, a.ID).Equal(dec("40")))

	f.post(t, a, EntryExpense, "15")
	require.True(t, f.balance(t, a.ID).Equal(dec("25")))

	require.NoError(t, f.svc.DeleteEntry(ctx, f.actor, e1.ID))
	require.True(t, f.balance(t, a.ID).Equal(dec("-15")))

	f.requireBalanced(t, a.ID)
	require.Equal(t, []string{"account.create", "entry.create", "entry.update", "entry.create", "entry.delete"}, f.audit.actions())
}

func TestBalanceMatchesLiveEntries(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Banco", "0")

	e1 := f.post(t, a, EntryIncome, "250.50")
	e2 := f.post(t, a, EntryExpense, "80.25")
	f.post(t, a, EntryIncome, "10")
	expense := EntryExpense
	amount := dec("30")
	_, err := f.svc.UpdateEntry(ctx, f.actor, e1.ID, EntryPatch{Type: &expense, CategoryID: &f.expense.ID, Amount: &amount})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteEntry(ctx, f.actor, e2.ID))

	live, err := f.svc.ListEntries(ctx, f.actor, EntryFilter{AccountID: &a.ID})
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range live {
		sum = sum.Add(e.SignedAmount())
	}
	require.True(t, f.balance(t, a.ID).Equal(sum))
	require.True(t, sum.Equal(dec("-20")))
	f.requireBalanced(t, a.ID)
}

func TestDeleteTwiceReversesOnce(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	e := f.post(t, a, EntryExpense, "42")

	require.NoError(t, f.svc.DeleteEntry(ctx, f.actor, e.ID))
	err := f.svc.DeleteEntry(ctx, f.actor, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.True(t, f.balance(t, a.ID).IsZero())
	require.Len(t, f.repo.postingsFor(a.ID), 2)
}

func TestEditEquivalentToDeleteAndRecreate(t *testing.T) {
	edited := newFixture(t, fastRetry(3))
	recreated := newFixture(t, fastRetry(3))
	ctx := context.Background()

	a1 := edited.openAccount(t, "Caixa", "5")
	e := edited.post(t, a1, EntryIncome, "70")
	y := dec("12.34")
	_, err := edited.svc.UpdateEntry(ctx, edited.actor, e.ID, EntryPatch{Amount: &y})
	require.NoError(t, err)

	a2 := recreated.openAccount(t, "Caixa", "5")
	e2 := recreated.post(t, a2, EntryIncome, "70")
	require.NoError(t, recreated.svc.DeleteEntry(ctx, recreated.actor, e2.ID))
	recreated.post(t, a2, EntryIncome, "12.34")

	require.True(t, edited.balance(t, a1.ID).Equal(recreated.balance(t, a2.ID)))
}

func TestCrossAccountEditMovesSignedAmount(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "A", "100")
	b := f.openAccount(t, "B", "50")
	e := f.post(t, a, EntryExpense, "30")
	combined := f.balance(t, a.ID).Add(f.balance(t, b.ID))

	moved, err := f.svc.UpdateEntry(ctx, f.actor, e.ID, EntryPatch{AccountID: &b.ID})
	require.NoError(t, err)
	require.Equal(t, b.ID, moved.AccountID)

	require.True(t, f.balance(t, a.ID).Equal(dec("100")))
	require.True(t, f.balance(t, b.ID).Equal(dec("20")))
	require.True(t, f.balance(t, a.ID).Add(f.balance(t, b.ID)).Equal(combined))
	f.requireBalanced(t, a.ID)
	f.requireBalanced(t, b.ID)
}

func TestConcurrentPostingsLoseNoUpdate(t *testing.T) {
	f := newFixture(t, RetryPolicy{MaxAttempts: 1000})
	a := f.openAccount(t, "Caixa", "0")

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PostEntry(context.Background(), f.actor, EntryInput{
				Description: "venda",
				Amount:      dec("1.25"),
				Type:        EntryIncome,
				CategoryID:  f.income.ID,
				AccountID:   a.ID,
				Date:        day(2024, 3, 2),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.True(t, f.balance(t, a.ID).Equal(dec("20")))
	f.requireBalanced(t, a.ID)
}

func TestConflictRetriedThenSucceeds(t *testing.T) {
	f := newFixture(t, fastRetry(4))
	a := f.openAccount(t, "Caixa", "0")
	f.repo.failNextApplies(2)

	f.post(t, a, EntryIncome, "10")
	require.True(t, f.balance(t, a.ID).Equal(dec("10")))
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.retries.WithLabelValues("entry.create")))
}

func TestConflictBudgetExhausted(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	a := f.openAccount(t, "Caixa", "0")
	f.repo.failNextApplies(10)

	_, err := f.svc.PostEntry(context.Background(), f.actor, EntryInput{
		Description: "venda",
		Amount:      dec("10"),
		Type:        EntryIncome,
		CategoryID:  f.income.ID,
		AccountID:   a.ID,
		Date:        day(2024, 3, 2),
	})
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Contains(t, err.Error(), "gave up after 3 attempts")
	require.True(t, f.balance(t, a.ID).IsZero())

	entries, err := f.svc.ListEntries(context.Background(), f.actor, EntryFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.operations.WithLabelValues("entry.create", "conflict")))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	f := newFixture(t, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})
	a := f.openAccount(t, "Caixa", "0")
	f.repo.failNextApplies(10)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.svc.PostEntry(ctx, f.actor, EntryInput{
		Description: "venda",
		Amount:      dec("10"),
		Type:        EntryIncome,
		CategoryID:  f.income.ID,
		AccountID:   a.ID,
		Date:        day(2024, 3, 2),
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPostEntryValidation(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	other := f.repo.addCategory(Category{CompanyID: uuid.New(), Name: "Outra", Type: EntryIncome, IsActive: true})

	base := EntryInput{
		Description: "venda",
		Amount:      dec("10"),
		Type:        EntryIncome,
		CategoryID:  f.income.ID,
		AccountID:   a.ID,
		Date:        day(2024, 3, 2),
	}
	cases := map[string]struct {
		mutate func(*EntryInput)
		field  string
	}{
		"zero amount":       {func(in *EntryInput) { in.Amount = decimal.Zero }, "amount"},
		"negative amount":   {func(in *EntryInput) { in.Amount = dec("-1") }, "amount"},
		"three decimals":    {func(in *EntryInput) { in.Amount = dec("1.005") }, "amount"},
		"blank description": {func(in *EntryInput) { in.Description = "   " }, "description"},
		"category type":     {func(in *EntryInput) { in.CategoryID = f.expense.ID }, "category_id"},
		"foreign category":  {func(in *EntryInput) { in.CategoryID = other.ID }, "category_id"},
		"missing account":   {func(in *EntryInput) { in.AccountID = uuid.New() }, "account_id"},
		"recurring no freq": {func(in *EntryInput) { in.IsRecurring = true }, "recurring_frequency"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := f.svc.PostEntry(ctx, f.actor, in)
			require.ErrorIs(t, err, ErrValidation)
			var le *Error
			require.True(t, errors.As(err, &le))
			require.Equal(t, tc.field, le.Field)
		})
	}
	require.True(t, f.balance(t, a.ID).IsZero())
}

func TestForeignIdsReadAsMissing(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	foreign := f.repo.addCategory(Category{CompanyID: uuid.New(), Name: "Outra", Type: EntryIncome, IsActive: true})

	post := func(categoryID, accountID uuid.UUID) string {
		_, err := f.svc.PostEntry(ctx, f.actor, EntryInput{
			Description: "venda", Amount: dec("5"), Type: EntryIncome,
			CategoryID: categoryID, AccountID: accountID, Date: day(2024, 3, 2),
		})
		var le *Error
		require.True(t, errors.As(err, &le))
		require.Equal(t, KindValidation, le.Kind)
		return le.Field + ": " + le.Msg
	}
	require.Equal(t, post(uuid.New(), a.ID), post(foreign.ID, a.ID))
	require.Equal(t, "category_id: category not found", post(foreign.ID, a.ID))

	outsider := Actor{UserID: uuid.New(), CompanyID: uuid.New()}
	cat := f.repo.addCategory(Category{CompanyID: outsider.CompanyID, Name: "Vendas", Type: EntryIncome, IsActive: true})
	_, err := f.svc.PostEntry(ctx, outsider, EntryInput{
		Description: "venda", Amount: dec("5"), Type: EntryIncome,
		CategoryID: cat.ID, AccountID: a.ID, Date: day(2024, 3, 2),
	})
	var le *Error
	require.True(t, errors.As(err, &le))
	require.Equal(t, "account_id", le.Field)
	require.Equal(t, "account not found", le.Msg)
}

func TestPostEntryRejectsForeignOrInactiveAccount(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")

	outsider := Actor{UserID: uuid.New(), CompanyID: uuid.New()}
	cat := f.repo.addCategory(Category{CompanyID: outsider.CompanyID, Name: "Vendas", Type: EntryIncome, IsActive: true})
	_, err := f.svc.PostEntry(ctx, outsider, EntryInput{
		Description: "venda", Amount: dec("5"), Type: EntryIncome,
		CategoryID: cat.ID, AccountID: a.ID, Date: day(2024, 3, 2),
	})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.svc.DeactivateAccount(ctx, f.actor, a.ID))
	_, err = f.svc.PostEntry(ctx, f.actor, EntryInput{
		Description: "venda", Amount: dec("5"), Type: EntryIncome,
		CategoryID: f.income.ID, AccountID: a.ID, Date: day(2024, 3, 2),
	})
	require.ErrorIs(t, err, ErrValidation)
	require.True(t, f.balance(t, a.ID).IsZero())
}

func TestEntriesAreScopedToCompany(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	e := f.post(t, a, EntryIncome, "9")

	outsider := Actor{UserID: uuid.New(), CompanyID: uuid.New()}
	_, err := f.svc.GetEntry(ctx, outsider, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, f.svc.DeleteEntry(ctx, outsider, e.ID), ErrNotFound)
	_, err = f.svc.GetAccount(ctx, outsider, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, f.balance(t, a.ID).Equal(dec("9")))
}

func TestUpdateClearsRecurrenceAndKeepsBalanceOnMetadataEdit(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	end := day(2024, 12, 31)
	e, err := f.svc.PostEntry(ctx, f.actor, EntryInput{
		Description: "assinatura", Amount: dec("19.90"), Type: EntryExpense,
		CategoryID: f.expense.ID, AccountID: a.ID, Date: day(2024, 3, 1),
		IsRecurring: true, RecurringFrequency: FrequencyMonthly, RecurringEndDate: &end,
		Tags: []string{"fixo", "Fixo", " mensal "},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"fixo", "mensal"}, e.Tags)

	recurring, err := f.svc.ListRecurring(ctx, f.actor)
	require.NoError(t, err)
	require.Len(t, recurring, 1)

	no := false
	notes := "cancelada"
	updated, err := f.svc.UpdateEntry(ctx, f.actor, e.ID, EntryPatch{IsRecurring: &no, Notes: &notes})
	require.NoError(t, err)
	require.Empty(t, updated.RecurringFrequency)
	require.Nil(t, updated.RecurringEndDate)
	require.True(t, f.balance(t, a.ID).Equal(dec("-19.90")))
	require.Len(t, f.repo.postingsFor(a.ID), 1)
}

func TestDuplicateEntryDefaultsToToday(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	e := f.post(t, a, EntryIncome, "15")

	dup, err := f.svc.DuplicateEntry(ctx, f.actor, e.ID, time.Time{})
	require.NoError(t, err)
	require.NotEqual(t, e.ID, dup.ID)
	require.Equal(t, day(2024, 3, 10), dup.Date)
	require.True(t, f.balance(t, a.ID).Equal(dec("30")))
}

func TestCreateAccountRecordsOpeningPosting(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	a := f.openAccount(t, "Poupança", "1234.56")

	require.True(t, a.Balance.Equal(dec("1234.56")))
	require.Equal(t, int64(1), a.Version)
	require.Equal(t, DefaultCurrency, a.Currency)
	postings := f.repo.postingsFor(a.ID)
	require.Len(t, postings, 1)
	require.Equal(t, PostingOpening, postings[0].Kind)
	require.Nil(t, postings[0].EntryID)

	empty := f.openAccount(t, "Vazia", "0")
	require.Empty(t, f.repo.postingsFor(empty.ID))
	require.Equal(t, int64(0), empty.Version)
}

func TestUpdateAccountNeverTouchesBalance(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	a := f.openAccount(t, "Caixa", "10")
	name := "Caixa Loja"
	typ := AccountCash
	cur := "usd"

	updated, err := f.svc.UpdateAccount(context.Background(), f.actor, a.ID, AccountPatch{Name: &name, Type: &typ, Currency: &cur})
	require.NoError(t, err)
	require.Equal(t, "Caixa Loja", updated.Name)
	require.Equal(t, AccountCash, updated.Type)
	require.Equal(t, "USD", updated.Currency)
	require.True(t, updated.Balance.Equal(dec("10")))
}

func TestDeactivateAccountIsIdempotent(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")

	require.NoError(t, f.svc.DeactivateAccount(ctx, f.actor, a.ID))
	require.NoError(t, f.svc.DeactivateAccount(ctx, f.actor, a.ID))
	require.Equal(t, []string{"account.create", "account.deactivate"}, f.audit.actions())

	active, err := f.svc.ListAccounts(ctx, f.actor, AccountFilter{})
	require.NoError(t, err)
	require.Empty(t, active)
	all, err := f.svc.ListAccounts(ctx, f.actor, AccountFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDeleteEntryOnInactiveAccountStillReverses(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "0")
	e := f.post(t, a, EntryIncome, "20")
	require.NoError(t, f.svc.DeactivateAccount(ctx, f.actor, a.ID))

	require.NoError(t, f.svc.DeleteEntry(ctx, f.actor, e.ID))
	require.True(t, f.balance(t, a.ID).IsZero())
}

func TestTransferPreservesCombinedBalance(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "A", "100")
	b := f.openAccount(t, "B", "0")

	out, err := f.svc.Transfer(ctx, f.actor, TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("60")})
	require.NoError(t, err)
	require.True(t, out.From.Balance.Equal(dec("40")))
	require.True(t, out.To.Balance.Equal(dec("60")))
	require.True(t, f.balance(t, a.ID).Add(f.balance(t, b.ID)).Equal(dec("100")))
	f.requireBalanced(t, a.ID)
	f.requireBalanced(t, b.ID)

	_, err = f.svc.Transfer(ctx, f.actor, TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("40.01")})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Transfer(ctx, f.actor, TransferInput{FromAccountID: a.ID, ToAccountID: a.ID, Amount: dec("1")})
	require.ErrorIs(t, err, ErrValidation)
	require.True(t, f.balance(t, a.ID).Equal(dec("40")))
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	ctx := context.Background()
	a := f.openAccount(t, "Caixa", "10")
	f.post(t, a, EntryExpense, "4")
	f.requireBalanced(t, a.ID)

	f.repo.setBalance(a.ID, dec("7"))
	rec, err := f.svc.Reconcile(ctx, f.actor, a.ID)
	require.NoError(t, err)
	require.False(t, rec.Balanced)
	require.True(t, rec.Drift.Equal(dec("1")))

	all, err := f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.False(t, all[0].Balanced)
}

func TestMutationsBumpCache(t *testing.T) {
	f := newFixture(t, fastRetry(3))
	a := f.openAccount(t, "Caixa", "0")
	f.post(t, a, EntryIncome, "1")
	require.Equal(t, 2, f.cache.bumps)
}
