package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/medlab/internal/models"
	"github.com/iudanet/medlab/internal/server/storage"
)

// expires_at хранится в unix секундах, сравнение в SQL без разбора строк
const (
	insertTokenQuery = `INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`
	selectTokenQuery = `SELECT id, token_hash, user_id, expires_at, created_at
		FROM refresh_tokens WHERE token_hash = ?`
)

// SaveRefreshToken stores the hash record of a newly issued refresh token
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, insertTokenQuery,
		token.ID, token.TokenHash, token.UserID, token.ExpiresAt.Unix(), token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken looks a token up by its SHA-256 hash
func (s *Storage) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var (
		rt        models.RefreshToken
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, selectTokenQuery, tokenHash).
		Scan(&rt.ID, &rt.TokenHash, &rt.UserID, &expiresAt, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	rt.ExpiresAt = time.Unix(expiresAt, 0)
	return &rt, nil
}

// DeleteRefreshToken deletes one token; ErrTokenNotFound if nothing matched
func (s *Storage) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	n, err := s.execCount(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if n == 0 {
		return storage.ErrTokenNotFound
	}
	return nil
}

// DeleteUserTokens revokes every refresh token of the user (logout)
func (s *Storage) DeleteUserTokens(ctx context.Context, userID string) (int, error) {
	n, err := s.execCount(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user tokens: %w", err)
	}
	return n, nil
}

// DeleteExpiredTokens removes tokens whose expiry is not after now
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	n, err := s.execCount(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return n, nil
}

func (s *Storage) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
