package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-order-backend/internal/config"
	"github.com/safar/go-order-backend/internal/database"
	"github.com/safar/go-order-backend/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Service resolves caller credentials to authenticated user ids and manages
// token lifecycle. Refresh tokens are opaque random values stored as digests
// with their own expiry; nothing about the user is encoded in the token
// itself.
type Service struct {
	cfg    config.AuthConfig
	users  *store.Users
	tokens *store.Tokens
}

func NewService(cfg config.AuthConfig, users *store.Users, tokens *store.Tokens) *Service {
	return &Service{cfg: cfg, users: users, tokens: tokens}
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate checks the email/password pair and returns the user id.
// A missing user and a wrong password are both ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (int64, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return user.ID, nil
}

// IssueTokens returns a signed access token and a stored single-use refresh
// token for the user.
func (s *Service) IssueTokens(ctx context.Context, userID int64) (*TokenPair, error) {
	access, err := signAccessToken(s.cfg, userID, time.Now())
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	expiresAt := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.tokens.StoreRefresh(ctx, hashToken(refresh), userID, expiresAt); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// fresh pair is issued. An unknown or expired token is ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, ok, err := s.tokens.ConsumeRefresh(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}

	return s.IssueTokens(ctx, userID)
}

// VerifyAccess validates a bearer token and returns the authenticated user
// id. Blacklisted tokens are rejected even when otherwise valid.
func (s *Service) VerifyAccess(ctx context.Context, tokenString string) (int64, error) {
	userID, _, err := parseAccessToken(s.cfg, tokenString)
	if err != nil {
		return 0, err
	}

	blacklisted, err := s.tokens.IsBlacklisted(ctx, hashToken(tokenString))
	if err != nil {
		return 0, err
	}
	if blacklisted {
		return 0, ErrInvalidToken
	}

	return userID, nil
}

// Logout blacklists the access token until its natural expiry and revokes
// the user's refresh tokens. Expired token rows are pruned opportunistically.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	userID, expiresAt, err := parseAccessToken(s.cfg, tokenString)
	if err != nil {
		return err
	}

	if err := s.tokens.Blacklist(ctx, hashToken(tokenString), expiresAt); err != nil {
		return err
	}
	if err := s.tokens.RevokeRefreshForUser(ctx, userID); err != nil {
		return err
	}

	return s.tokens.PruneExpired(ctx)
}
