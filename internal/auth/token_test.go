package auth

import (
	"testing"
	"time"

	"github.com/safar/go-order-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:  "test-secret",
		Issuer:     "go-order-backend",
		Audience:   "go-order-backend-clients",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		BcryptCost: 4,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testAuthConfig()
	now := time.Now()

	token, err := signAccessToken(cfg, 42, now)
	require.NoError(t, err)

	userID, expiresAt, err := parseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.WithinDuration(t, now.Add(cfg.AccessTTL), expiresAt, time.Second)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	cfg := testAuthConfig()

	token, err := signAccessToken(cfg, 42, time.Now())
	require.NoError(t, err)

	other := cfg
	other.JWTSecret = "different-secret"
	_, _, err = parseAccessToken(other, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenExpired(t *testing.T) {
	cfg := testAuthConfig()

	token, err := signAccessToken(cfg, 42, time.Now().Add(-2*cfg.AccessTTL))
	require.NoError(t, err)

	_, _, err = parseAccessToken(cfg, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenWrongAudience(t *testing.T) {
	cfg := testAuthConfig()

	token, err := signAccessToken(cfg, 42, time.Now())
	require.NoError(t, err)

	other := cfg
	other.Audience = "someone-else"
	_, _, err = parseAccessToken(other, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, hashToken("abc"), hashToken("abc"))
	assert.NotEqual(t, hashToken("abc"), hashToken("abd"))
	assert.Len(t, hashToken("abc"), 64)
}
