package auth

import (
	"context"
	"time"

	"github.com/iudanet/medlab/internal/client/session"
	"github.com/iudanet/medlab/internal/models"
	pkgapi "github.com/iudanet/medlab/pkg/api"
)

//go:generate moq -out service_mock.go . Service

// Service defines the auth operations available to the presentation layer.
// Every operation drives the session state through pending and then
// fulfilled or rejected; failures are returned as *Failure.
type Service interface {
	// Initialize восстанавливает сессию при старте и загружает профиль.
	// После него State().IsInitialized == true
	Initialize(ctx context.Context) session.State

	// Login выполняет аутентификацию по email (или username) и паролю
	Login(ctx context.Context, email, password string) (*models.User, error)

	// Register регистрирует нового пользователя и сразу открывает сессию
	Register(ctx context.Context, in RegisterInput) (*models.User, error)

	// Logout уведомляет сервер (best effort) и всегда очищает локальную сессию
	Logout(ctx context.Context)

	// FetchProfile загружает профиль текущего пользователя
	FetchProfile(ctx context.Context) (*models.User, error)

	// UpdateProfile изменяет профиль; nil поля не меняются
	UpdateProfile(ctx context.Context, in ProfileUpdate) (*models.User, error)

	// ChangePassword меняет пароль; сессия остаётся активной
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error

	// RefreshToken явно обновляет access token.
	// Ошибка завершает сессию
	RefreshToken(ctx context.Context) error

	// ClearError сбрасывает текст последней ошибки
	ClearError()

	// State returns the current session snapshot
	State() session.State

	// IsAuthenticated reports whether an access token is held
	IsAuthenticated() bool

	// CurrentUser returns the cached user record, nil when logged out
	CurrentUser() *models.User

	// AccessToken returns the live access token, "" when logged out
	AccessToken() string

	// TokenExpiry returns the exp claim of the access token, if present
	TokenExpiry() (time.Time, bool)
}

// API is the part of the HTTP client used by the auth operations.
// *api.Client implements it.
type API interface {
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.AuthResponse, error)
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.AuthResponse, error)
	Logout(ctx context.Context) error
	GetProfile(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, req pkgapi.UpdateProfileRequest) (*models.User, error)
	ChangePassword(ctx context.Context, req pkgapi.ChangePasswordRequest) error
	Refresh(ctx context.Context) (string, error)
}

// RegisterInput содержит данные для регистрации
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Role      string // пусто - роль по умолчанию на сервере
}

// ProfileUpdate содержит изменяемые поля профиля; nil - не менять
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}
