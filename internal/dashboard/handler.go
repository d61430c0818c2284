package dashboard

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conectell/livrocaixa/internal/ledger"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

// Handler serves /dashboard.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermDashboardView)).Get("/", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Summary(r.Context(), ledger.Actor{UserID: p.UserID, CompanyID: p.CompanyID}, period)
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("dashboard summary failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parsePeriod(r *http.Request) (Period, error) {
	var period Period
	q := r.URL.Query()
	for name, dst := range map[string]**time.Time{"from": &period.From, "to": &period.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, name)
		}
		*dst = &t
	}
	if period.From != nil && period.To != nil && period.To.Before(*period.From) {
		return Period{}, fmt.Errorf("%w: to is before from", httpx.ErrValidation)
	}
	return period, nil
}
