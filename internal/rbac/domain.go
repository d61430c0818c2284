// Package rbac resolves what a role may do and guards HTTP routes with it.
package rbac

import "strings"

// Role is the access level assigned to a user.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
	RoleClient Role = "cliente"
)

// Roles lists every assignable role.
var Roles = []Role{RoleAdmin, RoleUser, RoleViewer, RoleClient}

// ParseRole normalises a stored role string. Unknown values are reported
// as not ok and grant nothing.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Roles {
		if role == known {
			return role, true
		}
	}
	return role, false
}

// Permission names a single capability.
const (
	PermDashboardView  = "dashboard.view"
	PermDashboardEdit  = "dashboard.edit"
	PermUsersView      = "users.view"
	PermUsersCreate    = "users.create"
	PermUsersEdit      = "users.edit"
	PermUsersDelete    = "users.delete"
	PermReportsView    = "reports.view"
	PermReportsCreate  = "reports.create"
	PermSettingsView   = "settings.view"
	PermSettingsEdit   = "settings.edit"
	PermFinancialView  = "financial.view"
	PermFinancialEdit  = "financial.edit"
	PermAccountsView   = "accounts.view"
	PermAccountsEdit   = "accounts.edit"
	PermCategoriesView = "categories.view"
	PermCategoriesEdit = "categories.edit"
	PermEntriesView    = "entries.view"
	PermEntriesEdit    = "entries.edit"
	PermExpensesView   = "expenses.view"
	PermExpensesEdit   = "expenses.edit"
)
