package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/chatdocs/internal/models"
)

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(nil, "", time.Hour)
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, err := NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)

	user := &models.User{ID: uuid.New(), UserName: "ada"}
	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, "ada", claims.UserName)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer, err := NewService(nil, "secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewService(nil, "secret-b", time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueToken(&models.User{ID: uuid.New(), UserName: "ada"})
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc, err := NewService(nil, "test-secret", -time.Minute)
	require.NoError(t, err)

	token, err := svc.IssueToken(&models.User{ID: uuid.New(), UserName: "ada"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc, err := NewService(nil, "test-secret", time.Hour)
	require.NoError(t, err)
	_, err = svc.ParseToken("not.a.token")
	assert.Error(t, err)
}
