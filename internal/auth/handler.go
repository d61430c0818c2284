package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	tokens         *TokenManager
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenManager, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		tokens:         tokens,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(loginRateLimit, loginRateWindow, httprate.WithKeyFuncs(httprate.KeyByIP))
	r.Get("/csrf", h.handleCSRF)
	r.Group(func(r chi.Router) {
		r.Use(limiter)
		r.Post("/login", h.handleLogin)
		r.Post("/master-admin", h.handleMasterAdmin)
		r.Post("/password/reset-request", h.handleResetRequest)
		r.Post("/password/reset", h.handleReset)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
		r.Post("/password", h.handlePassword)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	User      User      `json:"user"`
	CSRFToken string    `json:"csrf_token"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	case errors.Is(err, shared.ErrAccountInactive):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is inactive or pending approval")
		return
	case err != nil:
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := loginResponse{User: user}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Renew(sess)
		sess.SetUser(user.ID.String())
		sess.Delete(shared.CSRFSessionKey)
		if resp.CSRFToken, err = h.csrfManager.EnsureToken(r.Context(), sess); err != nil {
			h.logger.Error("issue csrf token", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	} else {
		h.logger.Error("session missing during login")
	}
	if resp.Token, resp.ExpiresAt, err = h.tokens.Generate(user); err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	user, err := h.service.User(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	err := h.service.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "current password does not match")
		return
	case err != nil:
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMasterAdmin(w http.ResponseWriter, r *http.Request) {
	var req MasterAdminInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	user, err := h.service.BootstrapMasterAdmin(r.Context(), req)
	if err != nil {
		if !errors.Is(err, httpx.ErrConflict) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("bootstrap master admin", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirm struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirm
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.FieldErrors(err))
		return
	}
	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword)
	switch {
	case errors.Is(err, shared.ErrAccountInactive):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is not active")
		return
	case err != nil:
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
