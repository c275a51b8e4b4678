package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// EmailPattern определяет допустимый формат email
var EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// UsernamePattern определяет допустимый формат username
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 20
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxNameLen максимальная длина имени/фамилии
	MaxNameLen = 50
)

// PasswordRequirements is the message shown for any weak password.
const PasswordRequirements = "Password must be at least 8 characters long and contain letters and numbers"

// ValidateEmail проверяет формат email
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if !EmailPattern.MatchString(strings.TrimSpace(email)) {
		return fmt.Errorf("Invalid email format")
	}
	return nil
}

// ValidatePassword проверяет минимальные требования к паролю:
// не короче 8 символов, есть хотя бы одна буква и одна цифра
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf(PasswordRequirements)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf(PasswordRequirements)
	}
	return nil
}

// ValidateUsername проверяет, что username соответствует требованиям
// Формат: буквы, цифры, нижнее подчеркивание; длина 3-20;
// не может начинаться или заканчиваться на "_"
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}

	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return fmt.Errorf("Username must be %d-%d characters long", MinUsernameLen, MaxUsernameLen)
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("Username can only contain letters, numbers, and underscores")
	}

	if strings.HasPrefix(username, "_") || strings.HasSuffix(username, "_") {
		return fmt.Errorf("Username cannot start or end with an underscore")
	}

	return nil
}

// ValidateName проверяет имя или фамилию; field используется в сообщении
func ValidateName(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > MaxNameLen {
		return fmt.Errorf("%s must not exceed %d characters", field, MaxNameLen)
	}
	return nil
}

// ValidateRole проверяет роль; пустая роль допустима (роль по умолчанию)
func ValidateRole(role string) error {
	switch role {
	case "", "technician", "supervisor", "admin":
		return nil
	default:
		return fmt.Errorf("Invalid role")
	}
}
