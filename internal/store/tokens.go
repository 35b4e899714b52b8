package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Tokens persists refresh tokens and the access-token blacklist. Token
// values never touch the database in the clear; callers store digests.
type Tokens struct {
	db *sql.DB
}

func NewTokens(db *sql.DB) *Tokens {
	return &Tokens{db: db}
}

func (s *Tokens) StoreRefresh(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		 VALUES ($1, $2, $3)`,
		tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// ConsumeRefresh deletes the token row if it exists and has not expired,
// returning the user it belonged to. Each refresh token is single-use.
func (s *Tokens) ConsumeRefresh(ctx context.Context, tokenHash string) (int64, bool, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens
		 WHERE token_hash = $1 AND expires_at > NOW()
		 RETURNING user_id`,
		tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("consume refresh token: %w", err)
	}
	return userID, true, nil
}

func (s *Tokens) RevokeRefreshForUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *Tokens) Blacklist(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blacklisted_tokens (token_hash, expires_at)
		 VALUES ($1, $2)
		 ON CONFLICT (token_hash) DO NOTHING`,
		tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (s *Tokens) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM blacklisted_tokens WHERE token_hash = $1 AND expires_at > NOW())`,
		tokenHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists, nil
}

// PruneExpired drops refresh tokens and blacklist entries past their expiry.
func (s *Tokens) PruneExpired(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("prune refresh tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM blacklisted_tokens WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("prune blacklist: %w", err)
	}
	return nil
}
