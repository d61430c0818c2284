package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/conectell/livrocaixa/internal/audit"
	"github.com/conectell/livrocaixa/internal/auth"
	"github.com/conectell/livrocaixa/internal/categories"
	"github.com/conectell/livrocaixa/internal/companies"
	"github.com/conectell/livrocaixa/internal/dashboard"
	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/observability"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
	"github.com/conectell/livrocaixa/internal/users"
	"github.com/conectell/livrocaixa/jobs"
	"github.com/conectell/livrocaixa/report"
)

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authenticator  *auth.Authenticator
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	HealthChecks   map[string]HealthCheck

	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	DashboardHandler   *dashboard.Handler
	LedgerHandler      *ledger.Handler
	CategoriesHandler  *categories.Handler
	UsersHandler       *users.Handler
	CompaniesHandler   *companies.Handler
	ReportHandler      *report.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Authenticator:  params.Authenticator,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/accounts", params.LedgerHandler.MountAccountRoutes)
		r.Route("/entries", params.LedgerHandler.MountEntryRoutes)
		r.Route("/expenses", params.LedgerHandler.MountExpenseRoutes)
	}
	if params.CategoriesHandler != nil {
		r.Route("/categories", params.CategoriesHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.CompaniesHandler != nil {
		r.Route("/company", params.CompaniesHandler.MountCompanyRoutes)
		r.Route("/settings", params.CompaniesHandler.MountSettingsRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/reports", params.ReportHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAdmin())
			params.JobHandler.MountRoutes(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	return r
}

// healthHandler reports ok when every check passes within two seconds.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
