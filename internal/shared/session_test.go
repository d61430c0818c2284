package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "lc_session", time.Hour, false), mr
}

func TestSessionRoundTrip(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("user-1")
	sess.Set("theme", "dark")

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "user-1", loaded.User())
	require.Equal(t, "dark", loaded.Get("theme"))
}

func TestSessionUntouchedIsNotStored(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	require.False(t, mr.Exists("session:"+sess.ID))
	require.Empty(t, rr.Result().Cookies())
}

func TestSessionUnknownCookieGetsFreshID(t *testing.T) {
	sm, _ := newTestSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "lc_session", Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestSessionRenewDropsPreviousKey(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.Set("k", "v")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: "lc_session", Value: oldID})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	sm.Renew(loaded)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), next, loaded))

	require.NotEqual(t, oldID, loaded.ID)
	require.False(t, mr.Exists("session:"+oldID))
	require.True(t, mr.Exists("session:"+loaded.ID))
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, _ := sm.Load(ctx, req)
	sess.SetUser("u")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	sm.Destroy(sess)
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	require.False(t, mr.Exists("session:"+sess.ID))
	require.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()
	ctx := context.Background()

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, m.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, m.VerifyToken(ctx, sess, "forged"), ErrCSRFTokenMismatch)
	require.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)
}

func TestPaginateSlicesAndOvershoots(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	page := Paginate(items, 2, 3)
	require.Equal(t, []int{4, 5, 6}, page.Items)
	require.Equal(t, Pagination{Page: 2, PerPage: 3, Total: 7, TotalPages: 3}, page.Pagination)

	last := Paginate(items, 3, 3)
	require.Equal(t, []int{7}, last.Items)

	past := Paginate(items, 9, 3)
	require.NotNil(t, past.Items)
	require.Empty(t, past.Items)
	require.Equal(t, Pagination{Page: 9, PerPage: 3, Total: 7, TotalPages: 3}, past.Pagination)

	defaults := Paginate(items, 0, 0)
	require.Equal(t, 1, defaults.Pagination.Page)
	require.Len(t, defaults.Items, 7)
}
