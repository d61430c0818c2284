package rbac

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/conectell/livrocaixa/internal/shared"
)

func TestDefaultPolicyGrants(t *testing.T) {
	p := DefaultPolicy()

	require.True(t, p.HasPermission("user", false, PermEntriesEdit))
	require.False(t, p.HasPermission("user", false, PermUsersView))
	require.False(t, p.HasPermission("viewer", false, PermEntriesEdit))
	require.True(t, p.HasPermission("viewer", false, PermExpensesView))
	require.True(t, p.HasPermission("cliente", false, PermFinancialView))
	require.False(t, p.HasPermission("cliente", false, PermAccountsView))
	require.True(t, p.HasPermission("ADMIN", false, " Users.Delete "))
	require.False(t, p.HasPermission("guest", false, PermDashboardView))
	require.True(t, p.HasPermission("guest", true, PermSettingsEdit))
}

func TestPermissionsListing(t *testing.T) {
	p := DefaultPolicy()

	require.Equal(t, []string{PermDashboardView, PermFinancialView, PermReportsView}, p.Permissions("cliente", false))
	require.Len(t, p.Permissions("admin", false), 20)
	require.Len(t, p.Permissions("whatever", true), 20)
	require.Empty(t, p.Permissions("whatever", false))
}

func TestRoleHelpers(t *testing.T) {
	require.True(t, IsAdmin("admin", false))
	require.True(t, IsAdmin("viewer", true))
	require.False(t, IsAdmin("user", false))
	require.True(t, IsClient("cliente"))
	require.False(t, IsClient("admin"))
}

func TestMiddlewareStatuses(t *testing.T) {
	mw := Middleware{Policy: DefaultPolicy()}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	guarded := mw.RequireAny(PermEntriesEdit)(ok)

	serve := func(p *shared.Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/entries", nil)
		if p != nil {
			req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve(nil))
	require.Equal(t, http.StatusForbidden, serve(&shared.Principal{UserID: uuid.New(), Role: "viewer"}))
	require.Equal(t, http.StatusNoContent, serve(&shared.Principal{UserID: uuid.New(), Role: "user"}))

	all := mw.RequireAll(PermEntriesEdit, PermUsersView)(ok)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: uuid.New(), Role: "user"}))
	rec := httptest.NewRecorder()
	all.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestViewerOnlyResolvesViewPermissions(t *testing.T) {
	p := DefaultPolicy()
	for _, perm := range p.Permissions("admin", false) {
		if p.HasPermission("viewer", false, perm) {
			require.True(t, strings.HasSuffix(perm, ".view"), perm)
		}
		require.True(t, p.HasPermission("viewer", true, perm), perm)
	}
	require.Equal(t, []string{
		"accounts.view", "categories.view", "dashboard.view", "entries.view",
		"expenses.view", "financial.view", "reports.view",
	}, p.Permissions("viewer", false))
	require.False(t, p.HasPermission("viewer", false, PermSettingsView))
	require.False(t, p.HasPermission("viewer", false, PermUsersView))
}
