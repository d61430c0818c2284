package companies

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

// Handler serves /company and /settings.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountCompanyRoutes registers /company routes.
func (h *Handler) MountCompanyRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermSettingsView)).Get("/", h.getProfile)
	r.With(h.rbac.RequireAny(rbac.PermSettingsEdit)).Put("/", h.updateProfile)
}

// MountSettingsRoutes registers /settings routes.
func (h *Handler) MountSettingsRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermSettingsView)).Get("/", h.listSettings)
	r.With(h.rbac.RequireAny(rbac.PermSettingsEdit)).Put("/{key}", h.putSetting)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	c, err := h.service.Profile(r.Context(), actor)
	if err != nil {
		h.fail(w, "get company", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	var in ProfileInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	c, err := h.service.UpdateProfile(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "update company", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) listSettings(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	items, err := h.service.Settings(r.Context(), actor)
	if err != nil {
		h.fail(w, "list settings", err)
		return
	}
	if items == nil {
		items = []Setting{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) putSetting(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	var in SettingInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	s, err := h.service.PutSetting(r.Context(), actor, chi.URLParam(r, "key"), in)
	if err != nil {
		h.fail(w, "put setting", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
