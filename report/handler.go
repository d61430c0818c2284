package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

const (
	rateLimit  = 10
	rateWindow = time.Minute
)

// Enqueuer schedules asynchronous report runs.
type Enqueuer interface {
	EnqueueReport(ctx context.Context, req Request) error
}

// Handler manages report endpoints.
type Handler struct {
	service *Service
	queue   Enqueuer
	rbac    rbac.Middleware
	logger  *slog.Logger
}

// NewHandler creates a report handler. queue may be nil to disable async runs.
func NewHandler(service *Service, queue Enqueuer, rbac rbac.Middleware, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, queue: queue, rbac: rbac, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "too many reports, try again shortly")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermReportsView))
		r.Get("/", h.list)
		r.Get("/{id}/download", h.download)
		r.With(limiter).Get("/{type}.pdf", h.render)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermReportsCreate))
		r.With(limiter).Post("/{type}", h.enqueue)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	items, err := h.service.List(r.Context(), p.CompanyID)
	if err != nil {
		h.fail(w, "list reports", err)
		return
	}
	if items == nil {
		items = []GeneratedReport{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	req, err := h.request(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	g, pdf, err := h.service.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, "render report", err)
		return
	}
	writePDF(w, g.FileName, pdf)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.RespondError(w, fmt.Errorf("report queue: %w", httpx.ErrUnavailable))
		return
	}
	req, err := h.request(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.ID = uuid.New()
	if err := h.queue.EnqueueReport(r.Context(), req); err != nil {
		h.fail(w, "enqueue report", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"id": req.ID, "type": req.Type, "status": "queued"})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	g, pdf, err := h.service.Download(r.Context(), p.CompanyID, id)
	if err != nil {
		h.fail(w, "download report", err)
		return
	}
	writePDF(w, g.FileName, pdf)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p.CompanyID, id); err != nil {
		h.fail(w, "delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) request(r *http.Request) (Request, error) {
	p, _ := shared.PrincipalFromContext(r.Context())
	typ, err := ParseType(chi.URLParam(r, "type"))
	if err != nil {
		return Request{}, err
	}
	req := Request{Type: typ, CompanyID: p.CompanyID, UserID: p.UserID, UserName: p.Name}
	if req.UserName == "" {
		req.UserName = p.Email
	}
	q := r.URL.Query()
	if req.From, err = parseDay(q.Get("from")); err != nil {
		return Request{}, err
	}
	if req.To, err = parseDay(q.Get("to")); err != nil {
		return Request{}, err
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return Request{}, fmt.Errorf("%w: to is before from", httpx.ErrValidation)
	}
	return req, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseDay(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", httpx.ErrValidation)
	}
	return &t, nil
}

func writePDF(w http.ResponseWriter, name string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func reportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, errors.Join(ErrNotFound, err))
		return uuid.Nil, false
	}
	return id, true
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.UserID != uuid.Nil {
		return "user:" + p.UserID.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
