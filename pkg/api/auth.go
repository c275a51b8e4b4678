package api

import "github.com/iudanet/medlab/internal/models"

// LoginRequest представляет запрос на аутентификацию
// В поле Email допускается также username
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"` // technician по умолчанию
}

// AuthResponse возвращается login и register
type AuthResponse struct {
	User         *models.User `json:"user"`
	Message      string       `json:"message,omitempty"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// RefreshResponse содержит новый access token
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// ProfileResponse возвращается GET/PUT /auth/profile
type ProfileResponse struct {
	User    *models.User `json:"user"`
	Message string       `json:"message,omitempty"`
}

// UpdateProfileRequest содержит изменяемые поля профиля.
// nil означает "не менять".
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
}

// ChangePasswordRequest представляет запрос на смену пароля
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MessageResponse is a bare acknowledgement (logout, change-password).
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Details string `json:"details,omitempty"` // дополнительные детали
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
