package storage

import (
	"context"
)

// Ключи сессии в хранилище
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user" // JSON профиля пользователя, кеш для тёплого старта
)

// SessionKeys все ключи, которые удаляются при logout
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

//go:generate moq -out credentials_mock.go . CredentialStore

// CredentialStore defines durable key→string storage for session credentials.
// This is the lowest storage layer: values are opaque strings.
type CredentialStore interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if nothing is stored
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// SetMany stores all pairs atomically
	SetMany(ctx context.Context, values map[string]string) error

	// RemoveMany deletes the keys; missing keys are not an error
	RemoveMany(ctx context.Context, keys ...string) error
}
