package models

import "time"

// Роли пользователей лаборатории
const (
	RoleTechnician = "technician"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// DefaultDepartment подставляется, если отдел не указан при регистрации
const DefaultDepartment = "Laboratory"

// User представляет профиль пользователя так, как его отдаёт сервер.
// На клиенте это непрозрачная запись: кешируется в хранилище целиком.
type User struct {
	LastLogin     *time.Time      `json:"lastLogin"`
	Permissions   map[string]bool `json:"permissions,omitempty"`
	PhoneNumber   *string         `json:"phoneNumber"`
	LicenseNumber *string         `json:"licenseNumber"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	ID            string          `json:"id"`        // UUID пользователя
	Email         string          `json:"email"`     // уникальный email
	Username      string          `json:"username"`  // уникальный username
	FirstName     string          `json:"firstName"` // имя
	LastName      string          `json:"lastName"`  // фамилия
	Role          string          `json:"role"`
	Department    string          `json:"department"`
	IsActive      bool            `json:"isActive"`
}

// Clone returns a deep copy, so snapshots handed out never alias live state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.PhoneNumber != nil {
		s := *u.PhoneNumber
		c.PhoneNumber = &s
	}
	if u.LicenseNumber != nil {
		s := *u.LicenseNumber
		c.LicenseNumber = &s
	}
	if u.Permissions != nil {
		c.Permissions = make(map[string]bool, len(u.Permissions))
		for k, v := range u.Permissions {
			c.Permissions[k] = v
		}
	}
	return &c
}

// DisplayName возвращает "Имя Фамилия" или username, если имя не заполнено
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

// DefaultPermissions возвращает набор прав по роли
func DefaultPermissions(role string) map[string]bool {
	perms := map[string]bool{
		"canUploadSamples": true,
		"canViewAllTests":  true,
		"canDeleteTests":   false,
		"canManageUsers":   false,
		"canExportReports": true,
	}
	switch role {
	case RoleAdmin:
		perms["canDeleteTests"] = true
		perms["canManageUsers"] = true
	case RoleSupervisor:
		perms["canDeleteTests"] = true
	}
	return perms
}

// Account представляет учётную запись на стороне сервера (с хешем пароля)
type Account struct {
	User
	PasswordHash string `json:"-"` // bcrypt хеш пароля
}

// RefreshToken представляет refresh token пользователя (на сервере хранится только хеш)
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	ID        string    `json:"id"`         // UUID токена
	UserID    string    `json:"user_id"`    // ID пользователя
	TokenHash string    `json:"token_hash"` // SHA-256 хеш токена (hex)
}
