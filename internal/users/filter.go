package users

import (
	"sort"
	"strings"

	"github.com/conectell/livrocaixa/internal/shared"
)

// DefaultUsersPerPage is the page size of the user listing.
const DefaultUsersPerPage = 8

// UserQuery filters the user listing. Empty fields or "all" match everything.
type UserQuery struct {
	Search  string
	Role    string
	Status  string
	Page    int
	PerPage int
}

// FilterUsers applies q to users, newest first.
func FilterUsers(users []User, q UserQuery) shared.Page[User] {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]User, 0, len(users))
	for _, u := range users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if q.Role != "" && q.Role != "all" && u.Role != q.Role {
			continue
		}
		if q.Status != "" && q.Status != "all" && u.Status != q.Status {
			continue
		}
		matched = append(matched, u)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultUsersPerPage
	}
	return shared.Paginate(matched, q.Page, perPage)
}
