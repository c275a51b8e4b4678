package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/iudanet/medlab/internal/crypto"
	"github.com/iudanet/medlab/internal/models"
	"github.com/iudanet/medlab/internal/server/storage"
	"github.com/iudanet/medlab/internal/validation"
	"github.com/iudanet/medlab/pkg/api"
)

// maxBodyBytes ограничивает размер тела запроса
const maxBodyBytes = 1 << 20

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger       *slog.Logger
	userStorage  storage.UserStorage
	tokenStorage storage.TokenStorage
	jwtConfig    JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, tokenStorage storage.TokenStorage, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		userStorage:  userStorage,
		tokenStorage: tokenStorage,
		jwtConfig:    jwtConfig,
	}
}

// Register обрабатывает POST /api/auth/register
// Регистрация нового пользователя с выдачей пары токенов
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := validateRegister(req); err != nil {
		h.logger.WarnContext(ctx, "invalid register request", slog.Any("error", err))
		h.sendError(w, "Validation failed", http.StatusBadRequest, err.Error())
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleTechnician
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	now := h.jwtConfig.now().UTC()
	account := &models.Account{
		User: models.User{
			ID:          uuid.New().String(),
			Email:       req.Email,
			Username:    req.Username,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Role:        role,
			Department:  models.DefaultDepartment,
			Permissions: models.DefaultPermissions(role),
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
			LastLogin:   &now,
		},
		PasswordHash: hash,
	}

	// Сохраняем в БД
	if err := h.userStorage.CreateUser(ctx, account); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists", slog.String("username", req.Username))
			h.sendError(w, "User with this email or username already exists", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp, ok := h.issueTokens(w, r, &account.User)
	if !ok {
		return
	}
	resp.Message = "User registered successfully"

	h.logger.InfoContext(ctx, "user registered successfully",
		slog.String("username", account.Username),
		slog.String("user_id", account.ID))

	h.sendJSON(w, resp, http.StatusCreated)
}

// Login обрабатывает POST /api/auth/login
// Аутентификация по email или username
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	login := strings.TrimSpace(req.Email)
	if login == "" || req.Password == "" {
		h.sendError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	// Получаем пользователя из БД
	account, err := h.userStorage.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found")
			h.sendError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := crypto.CheckPassword(account.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, crypto.ErrPasswordMismatch) {
			h.logger.ErrorContext(ctx, "failed to check password", slog.Any("error", err))
		}
		h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("user_id", account.ID))
		h.sendError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if !account.IsActive {
		h.logger.WarnContext(ctx, "login failed: account deactivated", slog.String("user_id", account.ID))
		h.sendError(w, "Account is deactivated", http.StatusForbidden)
		return
	}

	// Обновляем last_login
	now := h.jwtConfig.now().UTC()
	if err := h.userStorage.UpdateLastLogin(ctx, account.ID, now); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	} else {
		account.LastLogin = &now
	}

	resp, ok := h.issueTokens(w, r, &account.User)
	if !ok {
		return
	}
	resp.Message = "Login successful"

	h.logger.InfoContext(ctx, "user logged in successfully", slog.String("user_id", account.ID))

	h.sendJSON(w, resp, http.StatusOK)
}

// Refresh обрабатывает POST /api/auth/refresh
// Выдаёт новый access token по refresh token из Authorization
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken, ok := BearerToken(r)
	if !ok {
		h.sendError(w, "Refresh token required", http.StatusUnauthorized)
		return
	}

	tokenHash := crypto.HashToken(refreshToken)

	// Проверяем refresh token в БД
	stored, err := h.tokenStorage.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "refresh token not found")
			h.sendError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get refresh token", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Проверяем срок действия
	if !h.jwtConfig.now().Before(stored.ExpiresAt) {
		h.logger.WarnContext(ctx, "refresh token expired", slog.String("user_id", stored.UserID))
		if err := h.tokenStorage.DeleteRefreshToken(ctx, tokenHash); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "failed to delete expired refresh token", slog.Any("error", err))
		}
		h.sendError(w, "Refresh token expired", http.StatusUnauthorized)
		return
	}

	account, err := h.userStorage.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.sendError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !account.IsActive {
		h.sendError(w, "Account is deactivated", http.StatusUnauthorized)
		return
	}

	accessToken, err := GenerateAccessToken(h.jwtConfig, &account.User)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "access token refreshed", slog.String("user_id", account.ID))

	h.sendJSON(w, api.RefreshResponse{AccessToken: accessToken}, http.StatusOK)
}

// Logout обрабатывает POST /api/auth/logout
// Удаляет все refresh tokens пользователя. Требует AuthMiddleware.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "Access token required", http.StatusUnauthorized)
		return
	}

	deleted, err := h.tokenStorage.DeleteUserTokens(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete user tokens", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user logged out successfully",
		slog.String("user_id", userID),
		slog.Int("tokens_deleted", deleted))

	h.sendJSON(w, api.MessageResponse{Message: "Logout successful"}, http.StatusOK)
}

// GetProfile обрабатывает GET /api/auth/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, api.ProfileResponse{User: &account.User}, http.StatusOK)
}

// UpdateProfile обрабатывает PUT /api/auth/profile
// Изменяются только переданные поля
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	if err := validateProfileUpdate(&req); err != nil {
		h.sendError(w, "Validation failed", http.StatusBadRequest, err.Error())
		return
	}

	if req.FirstName != nil {
		account.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		account.LastName = *req.LastName
	}
	if req.Email != nil {
		account.Email = *req.Email
	}
	if req.Password != nil {
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
			h.sendError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		account.PasswordHash = hash
	}
	account.UpdatedAt = h.jwtConfig.now().UTC()

	if err := h.userStorage.UpdateUser(ctx, account); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.sendError(w, "Email is already in use", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to update user", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "profile updated", slog.String("user_id", account.ID))

	h.sendJSON(w, api.ProfileResponse{
		Message: "Profile updated successfully",
		User:    &account.User,
	}, http.StatusOK)
}

// ChangePassword обрабатывает POST /api/auth/change-password
// Неверный текущий пароль - 403, чтобы клиент не путал его с истекшим токеном
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		h.sendError(w, "Current password and new password are required", http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		h.sendError(w, "Validation failed", http.StatusBadRequest, err.Error())
		return
	}

	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	if err := crypto.CheckPassword(account.PasswordHash, req.CurrentPassword); err != nil {
		h.logger.WarnContext(ctx, "change password: wrong current password", slog.String("user_id", account.ID))
		h.sendError(w, "Current password is incorrect", http.StatusForbidden)
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	account.PasswordHash = hash
	account.UpdatedAt = h.jwtConfig.now().UTC()

	if err := h.userStorage.UpdateUser(ctx, account); err != nil {
		h.logger.ErrorContext(ctx, "failed to update password", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "password changed", slog.String("user_id", account.ID))

	h.sendJSON(w, api.MessageResponse{Message: "Password changed successfully"}, http.StatusOK)
}

// issueTokens создаёт пару токенов и сохраняет хеш refresh token
func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, user *models.User) (*api.AuthResponse, bool) {
	ctx := r.Context()

	accessToken, err := GenerateAccessToken(h.jwtConfig, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	refreshToken, record, err := GenerateRefreshToken(h.jwtConfig, user.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate refresh token", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	if err := h.tokenStorage.SaveRefreshToken(ctx, record); err != nil {
		h.logger.ErrorContext(ctx, "failed to save refresh token", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	return &api.AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, true
}

// currentAccount загружает учётную запись по user_id из контекста
func (h *AuthHandler) currentAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "Access token required", http.StatusUnauthorized)
		return nil, false
	}

	account, err := h.userStorage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.sendError(w, "User not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		h.sendError(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return account, true
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", slog.String("path", r.URL.Path), slog.Any("error", err))
		h.sendError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// sendJSON отправляет JSON ответ
func (h *AuthHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	sendJSON(h.logger, w, data, statusCode)
}

// sendError отправляет JSON ответ с ошибкой
func (h *AuthHandler) sendError(w http.ResponseWriter, message string, statusCode int, details ...string) {
	SendError(h.logger, w, message, statusCode, details...)
}

func validateRegister(req api.RegisterRequest) error {
	if err := validation.ValidateEmail(req.Email); err != nil {
		return err
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		return err
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return err
	}
	if err := validation.ValidateName("First name", req.FirstName); err != nil {
		return err
	}
	if err := validation.ValidateName("Last name", req.LastName); err != nil {
		return err
	}
	return validation.ValidateRole(req.Role)
}

// validateProfileUpdate проверяет и нормализует переданные поля
func validateProfileUpdate(req *api.UpdateProfileRequest) error {
	for _, f := range []struct {
		value *string
		name  string
	}{
		{req.FirstName, "First name"},
		{req.LastName, "Last name"},
	} {
		if f.value == nil {
			continue
		}
		*f.value = strings.TrimSpace(*f.value)
		if err := validation.ValidateName(f.name, *f.value); err != nil {
			return err
		}
	}
	if req.Email != nil {
		*req.Email = strings.TrimSpace(*req.Email)
		if err := validation.ValidateEmail(*req.Email); err != nil {
			return err
		}
	}
	if req.Password != nil {
		if err := validation.ValidatePassword(*req.Password); err != nil {
			return err
		}
	}
	return nil
}
