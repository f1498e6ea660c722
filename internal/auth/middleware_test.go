package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/chatdocs/internal/models"
)

func authedHandler(t *testing.T, svc *Service) (http.Handler, *uuid.UUID) {
	t.Helper()
	var seen uuid.UUID
	h := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &seen
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	svc, err := NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), UserName: "ada"}
	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	h, seen := authedHandler(t, svc)
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, *seen)
}

func TestMiddlewareAcceptsCookie(t *testing.T) {
	svc, err := NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), UserName: "ada"}
	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	h, seen := authedHandler(t, svc)
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, *seen)
}

func TestMiddlewareRejectsMissingAndBadTokens(t *testing.T) {
	svc, err := NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)
	h, _ := authedHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserIDFromContextUnauthenticated(t *testing.T) {
	assert.Equal(t, uuid.Nil, UserIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
