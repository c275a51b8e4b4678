package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iudanet/medlab/internal/client/api"
	"github.com/iudanet/medlab/internal/client/session"
	"github.com/iudanet/medlab/internal/models"
	"github.com/iudanet/medlab/internal/validation"
	pkgapi "github.com/iudanet/medlab/pkg/api"
)

var (
	// errIncompleteAuth - сервер ответил 2xx без пары токенов
	errIncompleteAuth = errors.New("server response has no token pair")

	errNotAuthenticated = errors.New("Not authenticated")
)

// AuthService предоставляет операции авторизации
type AuthService struct {
	client  API
	session *session.Manager
	logger  *slog.Logger

	forceLogoutOnLaunch bool
}

// Option настраивает AuthService
type Option func(*AuthService)

// WithForceLogoutOnLaunch discards any stored session in Initialize instead
// of restoring it.
func WithForceLogoutOnLaunch(force bool) Option {
	return func(s *AuthService) {
		s.forceLogoutOnLaunch = force
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewAuthService создает новый сервис авторизации
func NewAuthService(client API, sess *session.Manager, opts ...Option) *AuthService {
	s := &AuthService{
		client:  client,
		session: sess,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Service = (*AuthService)(nil)

// Initialize восстанавливает сохранённую сессию и проверяет её загрузкой профиля.
// Завершение загрузки профиля (успех или ошибка) помечает состояние как
// инициализированное.
func (s *AuthService) Initialize(ctx context.Context) session.State {
	if s.forceLogoutOnLaunch {
		s.logger.Info("discarding stored session on launch")
		s.session.Reset(ctx)
	} else {
		restored, err := s.session.Restore(ctx)
		switch {
		case err != nil:
			s.logger.Warn("failed to restore session, starting logged out", slog.Any("error", err))
			s.session.Reset(ctx)
		case restored:
			s.logger.Info("stored session restored")
		}
	}

	if _, err := s.FetchProfile(ctx); err != nil {
		s.logger.Info("startup profile fetch failed", slog.String("error", err.Error()))
	}
	return s.session.Snapshot()
}

// Login выполняет аутентификацию пользователя
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	s.session.Begin(session.OpLogin)

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, s.fail(ctx, session.OpLogin, invalid(errors.New("Email and password are required")))
	}

	resp, err := s.client.Login(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.fail(ctx, session.OpLogin, err)
	}
	return s.establish(ctx, session.OpLogin, resp)
}

// Register регистрирует нового пользователя
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	s.session.Begin(session.OpRegister)

	if err := validateRegister(in); err != nil {
		return nil, s.fail(ctx, session.OpRegister, invalid(err))
	}

	resp, err := s.client.Register(ctx, pkgapi.RegisterRequest{
		Email:     strings.TrimSpace(in.Email),
		Username:  in.Username,
		Password:  in.Password,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      in.Role,
	})
	if err != nil {
		return nil, s.fail(ctx, session.OpRegister, err)
	}
	return s.establish(ctx, session.OpRegister, resp)
}

func (s *AuthService) establish(ctx context.Context, op session.Op, resp *pkgapi.AuthResponse) (*models.User, error) {
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, s.fail(ctx, op, errIncompleteAuth)
	}

	tokens := session.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	// Состояние меняется только после записи в хранилище
	if err := s.session.Establish(ctx, op, resp.User, tokens); err != nil {
		return nil, s.fail(ctx, op, err)
	}

	s.logger.Info("session established", slog.String("op", string(op)))
	return resp.User.Clone(), nil
}

// Logout выполняет выход из системы
// Удаляет локальные данные авторизации и уведомляет сервер (best effort)
func (s *AuthService) Logout(ctx context.Context) {
	s.session.Begin(session.OpLogout)

	if s.session.AccessToken() != "" {
		if err := s.client.Logout(ctx); err != nil {
			// Не прерываем процесс, если сервер недоступен
			s.logger.Warn("failed to logout on server", slog.Any("error", err))
		}
	}

	// Всегда удаляем локальные данные
	s.session.Logout(ctx)
	s.logger.Info("logged out")
}

// FetchProfile загружает профиль. Без access token возвращает nil без
// обращения к серверу; при сетевой ошибке отдаёт закешированный профиль.
func (s *AuthService) FetchProfile(ctx context.Context) (*models.User, error) {
	s.session.Begin(session.OpFetchProfile)

	if s.session.AccessToken() == "" {
		s.session.ProfileLoaded(ctx, nil)
		return nil, nil
	}

	user, err := s.client.GetProfile(ctx)
	if err != nil {
		if cached := s.session.CurrentUser(); cached != nil && isTransportError(err) {
			s.logger.Warn("server unreachable, using cached profile", slog.Any("error", err))
			s.session.ProfileLoaded(ctx, cached)
			return cached, nil
		}
		return nil, s.fail(ctx, session.OpFetchProfile, err)
	}

	s.session.ProfileLoaded(ctx, user)
	return user.Clone(), nil
}

// UpdateProfile обновляет профиль пользователя
func (s *AuthService) UpdateProfile(ctx context.Context, in ProfileUpdate) (*models.User, error) {
	s.session.Begin(session.OpUpdateProfile)

	if s.session.AccessToken() == "" {
		return nil, s.fail(ctx, session.OpUpdateProfile, invalid(errNotAuthenticated))
	}
	if err := validateProfileUpdate(in); err != nil {
		return nil, s.fail(ctx, session.OpUpdateProfile, invalid(err))
	}

	user, err := s.client.UpdateProfile(ctx, pkgapi.UpdateProfileRequest{
		FirstName: trimmed(in.FirstName),
		LastName:  trimmed(in.LastName),
		Email:     trimmed(in.Email),
		Password:  in.Password,
	})
	if err != nil {
		return nil, s.fail(ctx, session.OpUpdateProfile, err)
	}
	if user == nil {
		return nil, s.fail(ctx, session.OpUpdateProfile, errors.New("server response has no user"))
	}

	if err := s.session.ReplaceUser(ctx, user); err != nil {
		return nil, s.fail(ctx, session.OpUpdateProfile, err)
	}
	return user.Clone(), nil
}

// ChangePassword меняет пароль пользователя
func (s *AuthService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	s.session.Begin(session.OpChangePassword)

	if s.session.AccessToken() == "" {
		return s.fail(ctx, session.OpChangePassword, invalid(errNotAuthenticated))
	}
	if currentPassword == "" {
		return s.fail(ctx, session.OpChangePassword, invalid(errors.New("Current password is required")))
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return s.fail(ctx, session.OpChangePassword, invalid(err))
	}
	if currentPassword == newPassword {
		return s.fail(ctx, session.OpChangePassword, invalid(errors.New("New password must be different from the current one")))
	}

	err := s.client.ChangePassword(ctx, pkgapi.ChangePasswordRequest{
		CurrentPassword: currentPassword,
		NewPassword:     newPassword,
	})
	if err != nil {
		return s.fail(ctx, session.OpChangePassword, err)
	}

	s.session.Complete(session.OpChangePassword)
	return nil
}

// RefreshToken обновляет access token используя refresh token
func (s *AuthService) RefreshToken(ctx context.Context) error {
	s.session.Begin(session.OpRefreshToken)

	token, err := s.client.Refresh(ctx)
	if err != nil {
		return s.fail(ctx, session.OpRefreshToken, err)
	}

	s.session.TokenRefreshed(token)
	return nil
}

// ClearError сбрасывает ошибку в состоянии
func (s *AuthService) ClearError() {
	s.session.ClearError()
}

// State returns the current session snapshot
func (s *AuthService) State() session.State {
	return s.session.Snapshot()
}

// IsAuthenticated reports whether an access token is held
func (s *AuthService) IsAuthenticated() bool {
	return s.session.IsAuthenticated()
}

// CurrentUser returns the cached user record
func (s *AuthService) CurrentUser() *models.User {
	return s.session.CurrentUser()
}

// AccessToken returns the live access token
func (s *AuthService) AccessToken() string {
	return s.session.AccessToken()
}

// TokenExpiry returns the exp claim of the current access token
func (s *AuthService) TokenExpiry() (time.Time, bool) {
	token := s.session.AccessToken()
	if token == "" {
		return time.Time{}, false
	}
	exp, err := AccessTokenExpiry(token)
	if err != nil {
		s.logger.Debug("access token expiry unavailable", slog.Any("error", err))
		return time.Time{}, false
	}
	return exp, true
}

// fail нормализует ошибку и применяет rejected-переход. Отменённая
// операция и операция заменённой сессии переход не применяют.
func (s *AuthService) fail(ctx context.Context, op session.Op, err error) *Failure {
	f := normalize(op, err)
	s.logger.Debug("auth operation failed",
		slog.String("op", string(op)),
		slog.String("message", f.Message),
		slog.Any("error", err))

	if errors.Is(err, context.Canceled) || errors.Is(err, session.ErrSessionChanged) {
		s.session.Abandon(op)
		return f
	}
	s.session.Reject(ctx, op, f.Message)
	return f
}

// isTransportError - сервер не ответил (ни HTTP статуса, ни завершённой сессии)
func isTransportError(err error) bool {
	var apiErr *api.APIError
	var refreshErr *api.RefreshError
	return !errors.As(err, &apiErr) && !errors.As(err, &refreshErr) && !errors.Is(err, api.ErrSessionExpired)
}

func validateRegister(in RegisterInput) error {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return err
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return err
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return err
	}
	if err := validation.ValidateName("First name", in.FirstName); err != nil {
		return err
	}
	if err := validation.ValidateName("Last name", in.LastName); err != nil {
		return err
	}
	return validation.ValidateRole(in.Role)
}

func validateProfileUpdate(in ProfileUpdate) error {
	if in.FirstName != nil {
		if err := validation.ValidateName("First name", *in.FirstName); err != nil {
			return err
		}
	}
	if in.LastName != nil {
		if err := validation.ValidateName("Last name", *in.LastName); err != nil {
			return err
		}
	}
	if in.Email != nil {
		if err := validation.ValidateEmail(*in.Email); err != nil {
			return err
		}
	}
	if in.Password != nil {
		if err := validation.ValidatePassword(*in.Password); err != nil {
			return err
		}
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
