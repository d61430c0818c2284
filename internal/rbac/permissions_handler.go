package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/internal/shared"
)

// PermissionsHandler exposes the caller's effective permissions.
type PermissionsHandler struct {
	policy Policy
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(policy Policy) *PermissionsHandler {
	return &PermissionsHandler{policy: policy}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionsResponse struct {
	Role        string   `json:"role"`
	MasterAdmin bool     `json:"master_admin"`
	IsAdmin     bool     `json:"is_admin"`
	IsClient    bool     `json:"is_client"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Role:        p.Role,
		MasterAdmin: p.MasterAdmin,
		IsAdmin:     IsAdmin(p.Role, p.MasterAdmin),
		IsClient:    IsClient(p.Role),
		Permissions: h.policy.Permissions(p.Role, p.MasterAdmin),
	})
}
