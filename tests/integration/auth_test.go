package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/go-order-backend/internal/auth"
	"github.com/safar/go-order-backend/internal/config"
	"github.com/safar/go-order-backend/internal/store"
)

func newAuthService(db *sql.DB) *auth.Service {
	cfg := config.AuthConfig{
		JWTSecret:  "integration-test-secret",
		Issuer:     "go-order-backend",
		Audience:   "go-order-backend-clients",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	return auth.NewService(cfg, store.NewUsers(db), store.NewTokens(db))
}

func registerUser(t *testing.T, db *sql.DB, svc *auth.Service, email, password string) int64 {
	t.Helper()

	hash, err := svc.HashPassword(password)
	require.NoError(t, err)

	user, err := store.NewUsers(db).Create(context.Background(), "Auth User", email, hash)
	require.NoError(t, err)
	return user.ID
}

func TestAuthenticateAndVerify(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newAuthService(db)

	userID := registerUser(t, db, svc, "auth@example.com", "s3cret")

	gotID, err := svc.Authenticate(ctx, "auth@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)

	pair, err := svc.IssueTokens(ctx, userID)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	verifiedID, err := svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, verifiedID)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newAuthService(db)

	registerUser(t, db, svc, "reject@example.com", "s3cret")

	_, err := svc.Authenticate(ctx, "reject@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRefreshRotation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newAuthService(db)

	userID := registerUser(t, db, svc, "rotate@example.com", "s3cret")

	first, err := svc.IssueTokens(ctx, userID)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The consumed token must not be usable again.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	verifiedID, err := svc.VerifyAccess(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, verifiedID)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := newAuthService(db)

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestLogoutBlacklistsAccessToken(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := newAuthService(db)

	userID := registerUser(t, db, svc, "logout@example.com", "s3cret")

	pair, err := svc.IssueTokens(ctx, userID)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken))

	_, err = svc.VerifyAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Logout also revokes outstanding refresh tokens.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
