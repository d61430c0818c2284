package rbac

import (
	"sort"
	"strings"
)

// Policy maps roles to the permissions they grant. The zero value grants
// nothing except to master admins.
type Policy struct {
	grants map[Role]map[string]struct{}
}

// NewPolicy builds a policy from explicit grants.
func NewPolicy(grants map[Role][]string) Policy {
	p := Policy{grants: make(map[Role]map[string]struct{}, len(grants))}
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, perm := range normalizePermissions(perms) {
			set[perm] = struct{}{}
		}
		p.grants[role] = set
	}
	return p
}

// DefaultPolicy is the role table of the cash book.
func DefaultPolicy() Policy {
	return NewPolicy(map[Role][]string{
		RoleAdmin: {
			PermDashboardView, PermDashboardEdit,
			PermUsersView, PermUsersCreate, PermUsersEdit, PermUsersDelete,
			PermReportsView, PermReportsCreate,
			PermSettingsView, PermSettingsEdit,
			PermFinancialView, PermFinancialEdit,
			PermAccountsView, PermAccountsEdit,
			PermCategoriesView, PermCategoriesEdit,
			PermEntriesView, PermEntriesEdit,
			PermExpensesView, PermExpensesEdit,
		},
		RoleUser: {
			PermDashboardView, PermReportsView, PermFinancialView,
			PermAccountsView, PermCategoriesView,
			PermEntriesView, PermEntriesEdit,
			PermExpensesView, PermExpensesEdit,
		},
		RoleViewer: {
			PermDashboardView, PermReportsView, PermFinancialView,
			PermAccountsView, PermCategoriesView,
			PermEntriesView, PermExpensesView,
		},
		RoleClient: {
			PermDashboardView, PermReportsView, PermFinancialView,
		},
	})
}

// HasPermission reports whether role grants perm. Master admins hold every
// permission.
func (p Policy) HasPermission(role string, masterAdmin bool, perm string) bool {
	if masterAdmin {
		return true
	}
	r, ok := ParseRole(role)
	if !ok {
		return false
	}
	_, granted := p.grants[r][strings.ToLower(strings.TrimSpace(perm))]
	return granted
}

// Permissions lists the effective permissions of role in sorted order.
func (p Policy) Permissions(role string, masterAdmin bool) []string {
	if masterAdmin {
		all := make(map[string]struct{})
		for _, set := range p.grants {
			for perm := range set {
				all[perm] = struct{}{}
			}
		}
		return sortedKeys(all)
	}
	r, ok := ParseRole(role)
	if !ok {
		return []string{}
	}
	return sortedKeys(p.grants[r])
}

// IsAdmin reports whether the role administers the company.
func IsAdmin(role string, masterAdmin bool) bool {
	r, _ := ParseRole(role)
	return masterAdmin || r == RoleAdmin
}

// IsClient reports whether the role is the read-only client portal role.
func IsClient(role string) bool {
	r, _ := ParseRole(role)
	return r == RoleClient
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
