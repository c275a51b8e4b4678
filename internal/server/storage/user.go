package storage

import (
	"context"
	"time"

	"github.com/iudanet/medlab/internal/models"
)

// UserStorage defines interface for account persistence
type UserStorage interface {
	// CreateUser creates a new account
	// Returns ErrUserAlreadyExists if email or username is taken
	CreateUser(ctx context.Context, account *models.Account) error

	// GetUserByLogin retrieves account by email or username (case-insensitive)
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByLogin(ctx context.Context, login string) (*models.Account, error)

	// GetUserByID retrieves account by ID
	// Returns ErrUserNotFound if user doesn't exist
	GetUserByID(ctx context.Context, userID string) (*models.Account, error)

	// UpdateUser updates profile fields and password hash
	// Returns ErrUserNotFound if user doesn't exist,
	// ErrUserAlreadyExists if the new email is taken
	UpdateUser(ctx context.Context, account *models.Account) error

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error
}
