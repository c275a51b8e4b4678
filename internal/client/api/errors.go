package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is matched by every error that ended the session:
	// a failed refresh or a request rejected again after a successful refresh.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken indicates that there is no stored refresh token
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrMalformedRefresh indicates a 2xx refresh response without an access token
	ErrMalformedRefresh = errors.New("refresh response has no access token")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Message    string // поле error из тела ответа или текст статуса
	Details    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("server error (%d): %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a credential rejection (401).
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// RefreshError is returned when the refresh protocol fails. The session has
// already been cleared when a caller sees it.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Cause)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

// Is makes every RefreshError match ErrSessionExpired.
func (e *RefreshError) Is(target error) bool {
	return target == ErrSessionExpired
}
