package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/rbac"
	"github.com/conectell/livrocaixa/internal/shared"
)

// IdempotencyHeader carries the client key that makes entry creation safe to retry.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyModule = "ledger.entries"

// IdempotencyPort remembers processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Handler serves the account, entry and expense endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyPort
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance. idem may be nil to disable replay protection.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbac}
}

// MountAccountRoutes registers /accounts routes.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAccountsView))
		r.Get("/", h.listAccounts)
		r.Get("/stats", h.accountStats)
		r.Get("/{id}", h.getAccount)
		r.Get("/{id}/reconcile", h.reconcileAccount)
		r.Get("/{id}/postings", h.listPostings)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAccountsEdit))
		r.Post("/", h.createAccount)
		r.Post("/transfer", h.transfer)
		r.Put("/{id}", h.updateAccount)
		r.Delete("/{id}", h.deactivateAccount)
	})
}

// MountEntryRoutes registers /entries routes over both entry types.
func (h *Handler) MountEntryRoutes(r chi.Router) {
	h.mountEntries(r, entryScope{view: rbac.PermEntriesView, edit: rbac.PermEntriesEdit})
}

// MountExpenseRoutes registers /expenses routes, restricted to expense entries.
func (h *Handler) MountExpenseRoutes(r chi.Router) {
	expense := EntryExpense
	h.mountEntries(r, entryScope{view: rbac.PermExpensesView, edit: rbac.PermExpensesEdit, fixed: &expense})
}

type entryScope struct {
	view  string
	edit  string
	fixed *EntryType
}

func (h *Handler) mountEntries(r chi.Router, scope entryScope) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(scope.view))
		r.Get("/", h.listEntries(scope))
		r.Get("/recurring", h.listRecurring(scope))
		r.Get("/{id}", h.getEntry(scope))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(scope.edit))
		r.Post("/", h.createEntry(scope))
		r.Put("/{id}", h.updateEntry(scope))
		r.Delete("/{id}", h.deleteEntry(scope))
		r.Post("/{id}/duplicate", h.duplicateEntry(scope))
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	filter := AccountFilter{IncludeInactive: r.URL.Query().Get("include_inactive") == "true"}
	if raw := r.URL.Query().Get("type"); raw != "" && raw != "all" {
		typ := AccountType(raw)
		if !typ.Valid() {
			h.respondError(w, invalid("type", "unknown account type"))
			return
		}
		filter.Type = &typ
	}
	accounts, err := h.service.ListAccounts(r.Context(), actor, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": accounts})
}

func (h *Handler) accountStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	stats, err := h.service.AccountStats(r.Context(), actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acc, err := h.service.GetAccount(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in AccountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), actor, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch AccountPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.UpdateAccount(r.Context(), actor, id, patch)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), actor, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in TransferInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Transfer(r.Context(), actor, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) reconcileAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Reconcile(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !rec.Balanced {
		h.logger.Warn("account drift detected",
			slog.String("account_id", rec.AccountID.String()),
			slog.String("drift", rec.Drift.String()))
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) listPostings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.respondError(w, invalid("limit", "must be between 1 and 500"))
			return
		}
		limit = n
	}
	postings, err := h.service.ListPostings(r.Context(), actor, id, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": postings})
}

func (h *Handler) listEntries(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		q, err := ParseEntryQuery(r.URL.Query())
		if err != nil {
			h.respondError(w, err)
			return
		}
		if scope.fixed != nil {
			q.Type = scope.fixed
		}
		entries, err := h.service.ListEntries(r.Context(), actor, EntryFilter{
			Type:       q.Type,
			CategoryID: q.CategoryID,
			AccountID:  q.AccountID,
			From:       q.From,
			To:         q.To,
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, FilterEntries(entries, q))
	}
}

func (h *Handler) listRecurring(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		entries, err := h.service.ListRecurring(r.Context(), actor)
		if err != nil {
			h.respondError(w, err)
			return
		}
		if scope.fixed != nil {
			kept := entries[:0]
			for _, e := range entries {
				if e.Type == *scope.fixed {
					kept = append(kept, e)
				}
			}
			entries = kept
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
	}
}

func (h *Handler) getEntry(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		view, err := h.scopedEntry(r.Context(), actor, id, scope)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
	}
}

func (h *Handler) createEntry(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		var in EntryInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if scope.fixed != nil {
			if in.Type == "" {
				in.Type = *scope.fixed
			}
			if in.Type != *scope.fixed {
				h.respondError(w, invalid("type", "must be "+string(*scope.fixed)))
				return
			}
		}

		key := r.Header.Get(IdempotencyHeader)
		if key != "" && h.idem != nil {
			if err := h.idem.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Duplicate Request", "entry already created for this idempotency key")
					return
				}
				h.logger.Error("idempotency check", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
		}

		entry, err := h.service.PostEntry(r.Context(), actor, in)
		if err != nil {
			if key != "" && h.idem != nil {
				if relErr := h.idem.Release(context.WithoutCancel(r.Context()), key, idempotencyModule); relErr != nil {
					h.logger.Warn("idempotency release", slog.Any("error", relErr))
				}
			}
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, entry)
	}
}

func (h *Handler) updateEntry(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var patch EntryPatch
		if err := httpx.DecodeJSON(r, &patch); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if scope.fixed != nil {
			if patch.Type != nil && *patch.Type != *scope.fixed {
				h.respondError(w, invalid("type", "must be "+string(*scope.fixed)))
				return
			}
			if _, err := h.scopedEntry(r.Context(), actor, id, scope); err != nil {
				h.respondError(w, err)
				return
			}
		}
		entry, err := h.service.UpdateEntry(r.Context(), actor, id, patch)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entry)
	}
}

func (h *Handler) deleteEntry(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if scope.fixed != nil {
			if _, err := h.scopedEntry(r.Context(), actor, id, scope); err != nil {
				h.respondError(w, err)
				return
			}
		}
		if err := h.service.DeleteEntry(r.Context(), actor, id); err != nil {
			h.respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type duplicateRequest struct {
	Date *time.Time `json:"date"`
}

func (h *Handler) duplicateEntry(scope entryScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req duplicateRequest
		if r.ContentLength > 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
		if scope.fixed != nil {
			if _, err := h.scopedEntry(r.Context(), actor, id, scope); err != nil {
				h.respondError(w, err)
				return
			}
		}
		var date time.Time
		if req.Date != nil {
			date = *req.Date
		}
		entry, err := h.service.DuplicateEntry(r.Context(), actor, id, date)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, entry)
	}
}

// scopedEntry loads an entry and hides it when it falls outside the route's type.
func (h *Handler) scopedEntry(ctx context.Context, actor Actor, id uuid.UUID, scope entryScope) (EntryView, error) {
	view, err := h.service.GetEntry(ctx, actor, id)
	if err != nil {
		return EntryView{}, err
	}
	if scope.fixed != nil && view.Type != *scope.fixed {
		return EntryView{}, notFound("entry")
	}
	return view, nil
}

// respondError answers ledger validation failures with 422 and field detail;
// everything else goes through the shared mapping.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var le *Error
	if errors.As(err, &le) && le.Kind == KindValidation {
		field := le.Field
		if field == "" {
			field = "general"
		}
		msg := le.Msg
		if msg == "" {
			msg = le.Error()
		}
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, le.Error(), map[string]string{field: msg})
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("ledger request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return Actor{}, false
	}
	return Actor{UserID: p.UserID, CompanyID: p.CompanyID}, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, errors.Join(httpx.ErrNotFound, err))
		return uuid.Nil, false
	}
	return id, true
}
