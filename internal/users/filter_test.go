package users

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func sampleUsers() []User {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var users []User
	for i := 0; i < 10; i++ {
		role, status := "user", StatusActive
		if i%3 == 0 {
			role = "viewer"
		}
		if i%4 == 0 {
			status = StatusInactive
		}
		users = append(users, User{
			ID:        uuid.New(),
			Name:      fmt.Sprintf("Pessoa %d", i),
			Email:     fmt.Sprintf("p%d@conectell.com", i),
			Role:      role,
			Status:    status,
			CreatedAt: base.AddDate(0, 0, i),
		})
	}
	return users
}

func TestFilterUsersNewestFirstAndPaged(t *testing.T) {
	page := FilterUsers(sampleUsers(), UserQuery{})
	require.Len(t, page.Items, DefaultUsersPerPage)
	require.Equal(t, 10, page.Pagination.Total)
	require.Equal(t, 2, page.Pagination.TotalPages)
	require.Equal(t, "Pessoa 9", page.Items[0].Name)

	second := FilterUsers(sampleUsers(), UserQuery{Page: 2})
	require.Len(t, second.Items, 2)
	require.Equal(t, "Pessoa 0", second.Items[1].Name)
}

func TestFilterUsersCriteria(t *testing.T) {
	users := sampleUsers()

	page := FilterUsers(users, UserQuery{Search: "P3@CONECTELL"})
	require.Len(t, page.Items, 1)
	require.Equal(t, "Pessoa 3", page.Items[0].Name)

	page = FilterUsers(users, UserQuery{Role: "viewer", Status: "all"})
	require.Equal(t, 4, page.Pagination.Total)

	page = FilterUsers(users, UserQuery{Role: "viewer", Status: StatusInactive})
	require.Equal(t, 1, page.Pagination.Total)
}
