package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

type stubRepo struct {
	rows    []TimelineRow
	filters TimelineFilters
	offset  int
	limit   int
}

func (s *stubRepo) Window(_ context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.filters, s.offset, s.limit = f, offset, limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *stubRepo) All(_ context.Context, f TimelineFilters) ([]TimelineRow, error) {
	s.filters = f
	return s.rows, nil
}

func sampleRows(n int) []TimelineRow {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{ID: int64(n - i), At: base.Add(-time.Duration(i) * time.Hour), Action: "entry.create", Entity: "entry", EntityID: uuid.NewString(), Meta: json.RawMessage(`{"amount":"10"}`)}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(25)}
	svc := NewService(repo)
	company := uuid.New()

	first, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: company, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, first.Rows, 10)
	assert.True(t, first.Paging.HasNext)
	assert.Equal(t, 2, first.Paging.NextPage)
	assert.Zero(t, first.Paging.PrevPage)
	assert.Equal(t, 11, repo.limit)

	last, err := svc.Timeline(context.Background(), TimelineFilters{CompanyID: company, Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, last.Rows, 5)
	assert.False(t, last.Paging.HasNext)
	assert.Equal(t, 2, last.Paging.PrevPage)
	assert.Equal(t, 20, repo.offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	res, err := NewService(repo).Timeline(context.Background(), TimelineFilters{CompanyID: uuid.New(), PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, res.Paging.PageSize)
	assert.NotNil(t, res.Rows)
}

func TestTimelineRequiresCompany(t *testing.T) {
	_, err := NewService(&stubRepo{}).Timeline(context.Background(), TimelineFilters{})
	assert.ErrorIs(t, err, httpx.ErrValidation)
	_, err = NewService(&stubRepo{}).Export(context.Background(), TimelineFilters{})
	assert.ErrorIs(t, err, ErrCompanyRequired)
}

func TestWriteCSV(t *testing.T) {
	actor := uuid.New()
	rows := []TimelineRow{
		{At: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ActorName: "Ana, Silva", Action: "user.create", Entity: "user", EntityID: "u1", Meta: json.RawMessage(`{"role":"user"}`)},
		{At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ActorID: &actor, Action: "setting.upsert", Entity: "setting", EntityID: "theme"},
	}
	body, err := WriteCSV(rows)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "Ana, Silva", records[1][1])
	assert.Equal(t, "2024-01-02T03:04:05Z", records[1][0])
	assert.Equal(t, actor.String(), records[2][1])
}

func newRouter(repo *stubRepo, role string) (http.Handler, shared.Principal) {
	p := shared.Principal{UserID: uuid.New(), CompanyID: uuid.New(), Role: role}
	h := NewHandler(nil, NewService(repo), rbac.Middleware{Policy: rbac.DefaultPolicy()})
	h.now = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/audit", h.MountRoutes)
	return r, p
}

func TestTimelineRouteScopesCompanyAndDefaults(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(3)}
	r, p := newRouter(repo, "admin")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit?entity=entry", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Rows, 3)
	assert.Equal(t, p.CompanyID, repo.filters.CompanyID)
	assert.Equal(t, "entry", repo.filters.Entity)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), repo.filters.To)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), repo.filters.From)
}

func TestTimelineRouteRejectsBadFilters(t *testing.T) {
	r, _ := newRouter(&stubRepo{}, "admin")
	for _, path := range []string{
		"/audit?from=2024-03-10&to=2024-03-01",
		"/audit?from=2023-01-01&to=2024-03-01",
		"/audit?to=10/03/2024",
		"/audit?page=0",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestTimelineRouteRequiresAdmin(t *testing.T) {
	r, _ := newRouter(&stubRepo{}, "user")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportRoute(t *testing.T) {
	r, _ := newRouter(&stubRepo{rows: sampleRows(2)}, "admin")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "\n"))
}
