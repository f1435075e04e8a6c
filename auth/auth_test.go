package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret", "typingserver", time.Hour)
	playerID := uuid.New()

	token, err := svc.GenerateAccessToken(playerID, "nick")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, playerID, claims.PlayerID)
	require.Equal(t, "nick", claims.DisplayName)
}

func TestValidateAccessTokenRejectsWrongSecret(t *testing.T) {
	signer := NewJWTService("secret-a", "typingserver", time.Hour)
	verifier := NewJWTService("secret-b", "typingserver", time.Hour)

	token, err := signer.GenerateAccessToken(uuid.New(), "nick")
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	svc := NewJWTService("test-secret", "typingserver", -time.Minute)
	token, err := svc.GenerateAccessToken(uuid.New(), "nick")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestIdentifyConnectionFallsBackToAnonymousWithDisplayName(t *testing.T) {
	svc := NewJWTService("test-secret", "typingserver", time.Hour)

	id, err := svc.IdentifyConnection("", "guest")
	require.NoError(t, err)
	require.True(t, id.Anonymous)
	require.Equal(t, "guest", id.DisplayName)

	id, err = svc.IdentifyConnection("not-a-real-token", "guest")
	require.NoError(t, err)
	require.True(t, id.Anonymous)
	require.Equal(t, "guest", id.DisplayName)
}

func TestIdentifyConnectionResolvesValidToken(t *testing.T) {
	svc := NewJWTService("test-secret", "typingserver", time.Hour)
	playerID := uuid.New()
	token, err := svc.GenerateAccessToken(playerID, "nick")
	require.NoError(t, err)

	id, err := svc.IdentifyConnection(token, "")
	require.NoError(t, err)
	require.False(t, id.Anonymous)
	require.Equal(t, playerID, id.PlayerID)
	require.Equal(t, "nick", id.DisplayName)
}

func TestIdentifyConnectionRequiresTokenOrDisplayName(t *testing.T) {
	svc := NewJWTService("test-secret", "typingserver", time.Hour)

	_, err := svc.IdentifyConnection("", "")
	require.ErrorIs(t, err, ErrIdentityRequired)

	_, err = svc.IdentifyConnection("not-a-real-token", "")
	require.ErrorIs(t, err, ErrIdentityRequired)
}
