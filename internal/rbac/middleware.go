package rbac

import (
	"log/slog"
	"net/http"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Policy Policy
	Logger *slog.Logger
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard("require any", func(p shared.Principal) bool {
		if len(normalized) == 0 {
			return true
		}
		for _, perm := range normalized {
			if m.Policy.HasPermission(p.Role, p.MasterAdmin, perm) {
				return true
			}
		}
		return false
	})
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard("require all", func(p shared.Principal) bool {
		for _, perm := range normalized {
			if !m.Policy.HasPermission(p.Role, p.MasterAdmin, perm) {
				return false
			}
		}
		return true
	})
}

// RequireAdmin admits company admins and master admins.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.guard("require admin", func(p shared.Principal) bool {
		return IsAdmin(p.Role, p.MasterAdmin)
	})
}

func (m Middleware) guard(name string, allowed func(shared.Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !allowed(principal) {
				if m.Logger != nil {
					m.Logger.Debug("rbac "+name+" denied",
						slog.String("user_id", principal.UserID.String()),
						slog.String("role", principal.Role),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
