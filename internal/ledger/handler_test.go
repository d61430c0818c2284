package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	if _, ok := m.keys[module+"|"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"|"+key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"|"+key)
	return nil
}

type handlerEnv struct {
	f      *fixture
	router http.Handler
	role   string
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	env := &handlerEnv{f: newFixture(t, fastRetry(3)), role: "user"}
	h := NewHandler(nil, env.f.svc, &memoryIdempotency{}, rbac.Middleware{Policy: rbac.DefaultPolicy()})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{
				UserID:    env.f.actor.UserID,
				CompanyID: env.f.actor.CompanyID,
				Role:      env.role,
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/accounts", h.MountAccountRoutes)
	r.Route("/entries", h.MountEntryRoutes)
	r.Route("/expenses", h.MountExpenseRoutes)
	env.router = r
	return env
}

func (e *handlerEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func entryBody(f *fixture, acc Account, typ EntryType, amount string) string {
	cat := f.income.ID
	if typ == EntryExpense {
		cat = f.expense.ID
	}
	body, _ := json.Marshal(map[string]any{
		"description": "pelo handler",
		"amount":      amount,
		"type":        typ,
		"category_id": cat,
		"account_id":  acc.ID,
		"date":        "2024-03-04T00:00:00Z",
	})
	return string(body)
}

func TestHandlerPostsEntryOncePerIdempotencyKey(t *testing.T) {
	env := newHandlerEnv(t)
	acc := env.f.openAccount(t, "Caixa", "0")
	body := entryBody(env.f, acc, EntryIncome, "12.50")

	rec := env.do(http.MethodPost, "/entries/", body, IdempotencyHeader, "abc-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.Amount.Equal(dec("12.50")))

	rec = env.do(http.MethodPost, "/entries/", body, IdempotencyHeader, "abc-1")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.True(t, env.f.balance(t, acc.ID).Equal(dec("12.50")))
}

func TestHandlerReleasesKeyOnFailure(t *testing.T) {
	env := newHandlerEnv(t)
	acc := env.f.openAccount(t, "Caixa", "0")

	rec := env.do(http.MethodPost, "/entries/", entryBody(env.f, acc, EntryIncome, "0"), IdempotencyHeader, "k")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Errors, "amount")

	rec = env.do(http.MethodPost, "/entries/", entryBody(env.f, acc, EntryIncome, "3"), IdempotencyHeader, "k")
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandlerEnforcesPermissions(t *testing.T) {
	env := newHandlerEnv(t)
	acc := env.f.openAccount(t, "Caixa", "0")
	env.role = "viewer"

	rec := env.do(http.MethodPost, "/entries/", entryBody(env.f, acc, EntryIncome, "1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(http.MethodGet, "/entries/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env.role = "cliente"
	rec = env.do(http.MethodGet, "/accounts/", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerListsFilteredPage(t *testing.T) {
	env := newHandlerEnv(t)
	acc := env.f.openAccount(t, "Caixa", "0")
	env.f.post(t, acc, EntryIncome, "10")
	env.f.post(t, acc, EntryExpense, "5")
	env.f.post(t, acc, EntryExpense, "7")

	rec := env.do(http.MethodGet, "/entries/?type=expense&sort=amount&order=asc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page shared.Page[EntryView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	require.True(t, page.Items[0].Amount.Equal(dec("5")))
	require.Equal(t, "Aluguel", page.Items[0].Category.Name)

	rec = env.do(http.MethodGet, "/entries/?sort=bogus", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerExpensesAreTypeScoped(t *testing.T) {
	env := newHandlerEnv(t)
	acc := env.f.openAccount(t, "Caixa", "0")
	income := env.f.post(t, acc, EntryIncome, "10")

	rec := env.do(http.MethodPost, "/expenses/", entryBody(env.f, acc, EntryIncome, "1"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodDelete, "/expenses/"+income.ID.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.True(t, env.f.balance(t, acc.ID).Equal(dec("10")))

	rec = env.do(http.MethodGet, "/expenses/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page shared.Page[EntryView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Empty(t, page.Items)
}

func TestHandlerDeleteTwice(t *testing.T) {
	env := newHandlerEnv(t)
	acc := env.f.openAccount(t, "Caixa", "0")
	e := env.f.post(t, acc, EntryExpense, "8")

	rec := env.do(http.MethodDelete, "/entries/"+e.ID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodDelete, "/entries/"+e.ID.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodDelete, "/entries/not-a-uuid", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.True(t, env.f.balance(t, acc.ID).IsZero())
}

func TestHandlerTransferAndReconcile(t *testing.T) {
	env := newHandlerEnv(t)
	env.role = "admin"
	a := env.f.openAccount(t, "A", "50")
	b := env.f.openAccount(t, "B", "0")

	body, _ := json.Marshal(map[string]any{"from_account_id": a.ID, "to_account_id": b.ID, "amount": "20"})
	rec := env.do(http.MethodPost, "/accounts/transfer", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/accounts/"+b.ID.String()+"/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recon Reconciliation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recon))
	require.True(t, recon.Balanced)
	require.True(t, recon.Balance.Equal(dec("20")))

	rec = env.do(http.MethodGet, "/accounts/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
