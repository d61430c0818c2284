package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

// PrincipalResolver loads the principal for a user id.
type PrincipalResolver interface {
	Principal(ctx context.Context, id uuid.UUID) (shared.Principal, error)
}

// Authenticator resolves the request principal from a bearer token or the
// session and stores it in the request context.
type Authenticator struct {
	resolver PrincipalResolver
	tokens   *TokenManager
	logger   *slog.Logger
}

// NewAuthenticator builds the principal middleware.
func NewAuthenticator(resolver PrincipalResolver, tokens *TokenManager, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{resolver: resolver, tokens: tokens, logger: logger}
}

// BearerToken returns the bearer credential of r, if any.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Middleware attaches the principal when the request carries valid
// credentials. An invalid bearer token is rejected outright; a stale session
// simply leaves the request anonymous.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := BearerToken(r); ok {
			id, err := a.tokens.Parse(raw)
			if err != nil {
				httpx.RespondError(w, ErrInvalidToken)
				return
			}
			principal, err := a.resolver.Principal(r.Context(), id)
			if err != nil {
				a.reject(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
			return
		}

		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := uuid.Parse(sess.User())
		if err != nil {
			a.logger.Warn("session user id", slog.String("value", sess.User()))
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.resolver.Principal(r.Context(), id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrAccountInactive) {
				sess.SetUser("")
				next.ServeHTTP(w, r)
				return
			}
			a.reject(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrAccountInactive):
		httpx.RespondError(w, httpx.ErrUnauthorized)
	default:
		a.logger.Error("resolve principal", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
