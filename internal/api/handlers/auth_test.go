package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/chatdocs/internal/auth"
	"github.com/nikhilbhutani/chatdocs/internal/models"
	"github.com/nikhilbhutani/chatdocs/internal/queue"
)

type fakeOTPQueue struct{ payloads []queue.OTPDeliverPayload }

func (q *fakeOTPQueue) EnqueueOTPDeliver(p queue.OTPDeliverPayload) error {
	q.payloads = append(q.payloads, p)
	return nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func requestOTP(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/request", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)
	return rec
}

func TestRequestOTPThrottlesRepeatRequests(t *testing.T) {
	q := &fakeOTPQueue{}
	limiter := &fakeLimiter{allow: false}
	h := NewAuthHandler(nil, nil, q, limiter, time.Hour)

	rec := requestOTP(t, h, `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, q.payloads, "a throttled request must not enqueue delivery")
	assert.Equal(t, []string{"otp:req:ada@example.com"}, limiter.keys)
}

func TestRequestOTPEnqueuesWhenAllowed(t *testing.T) {
	q := &fakeOTPQueue{}
	h := NewAuthHandler(nil, nil, q, &fakeLimiter{allow: true}, time.Hour)

	rec := requestOTP(t, h, `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, "ada@example.com", q.payloads[0].Email)
}

func TestRequestOTPLimiterOutageDoesNotBlock(t *testing.T) {
	q := &fakeOTPQueue{}
	h := NewAuthHandler(nil, nil, q, &fakeLimiter{err: errors.New("redis down")}, time.Hour)

	rec := requestOTP(t, h, `{"phone":"+15550100"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.payloads, 1)
}

func TestRequestOTPRequiresDestination(t *testing.T) {
	h := NewAuthHandler(nil, nil, &fakeOTPQueue{}, &fakeLimiter{allow: true}, time.Hour)

	rec := requestOTP(t, h, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckReportsValidSession(t *testing.T) {
	svc, err := auth.NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)
	h := NewAuthHandler(svc, nil, &fakeOTPQueue{}, nil, time.Hour)

	user := &models.User{ID: uuid.New(), UserName: "ada"}
	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/check", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Check(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, user.ID.String(), body["user_id"])
	assert.Equal(t, "ada", body["user_name"])
}

func TestCheckRejectsMissingOrBadToken(t *testing.T) {
	svc, err := auth.NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)
	h := NewAuthHandler(svc, nil, &fakeOTPQueue{}, nil, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/check", nil)
	rec := httptest.NewRecorder()
	h.Check(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/check", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = httptest.NewRecorder()
	h.Check(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
