package middleware

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/medlab/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT access token.
// Любая ошибка - 401, клиент на это отвечает обновлением токена.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Ожидаем формат: "Bearer <token>"
			tokenString, ok := handlers.BearerToken(r)
			if !ok {
				logger.WarnContext(r.Context(), "missing or malformed Authorization header", "path", r.URL.Path)
				handlers.SendError(logger, w, "Access token required", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid access token", "error", err)
				handlers.SendError(logger, w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			logger.DebugContext(r.Context(), "user authenticated", "user_id", claims.UserID, "role", claims.Role)

			// Передаем запрос дальше с данными пользователя в контексте
			next.ServeHTTP(w, r.WithContext(handlers.WithUser(r.Context(), claims)))
		})
	}
}
