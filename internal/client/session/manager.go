package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/medlab/internal/client/storage"
	"github.com/iudanet/medlab/internal/models"
)

// ErrSessionChanged is returned when a token write targets a session that
// was replaced or cleared after the write was prepared.
var ErrSessionChanged = errors.New("session changed during refresh")

// Manager pairs every credential-store write with its state transition.
// Writes and transitions happen under one lock, so a subsequent reader never
// sees the store and the Machine disagree. The epoch counter changes each
// time a session is established or cleared; a refresh prepared under an old
// epoch cannot write into a newer session.
type Manager struct {
	store   storage.CredentialStore
	machine *Machine
	logger  *slog.Logger
	epoch   uint64
	mu      sync.Mutex
}

// NewManager creates a new session manager
func NewManager(store storage.CredentialStore, machine *Machine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		machine: machine,
		logger:  logger,
	}
}

// Machine returns the underlying state machine
func (m *Manager) Machine() *Machine {
	return m.machine
}

// Snapshot returns the current state
func (m *Manager) Snapshot() State {
	return m.machine.Snapshot()
}

// AccessToken returns the live access token from the state machine
func (m *Manager) AccessToken() string {
	return m.machine.AccessToken()
}

// AccessTokenEpoch returns the live access token together with the epoch of
// the session it belongs to.
func (m *Manager) AccessTokenEpoch() (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.AccessToken(), m.epoch
}

// IsAuthenticated reports whether a session is active
func (m *Manager) IsAuthenticated() bool {
	return m.machine.Snapshot().IsAuthenticated
}

// CurrentUser returns a copy of the current user record, or nil
func (m *Manager) CurrentUser() *models.User {
	return m.machine.Snapshot().User
}

// Begin applies the pending transition for op
func (m *Manager) Begin(op Op) {
	m.machine.Apply(PendingEvent(op))
}

// ClearError resets the error field
func (m *Manager) ClearError() {
	m.machine.Apply(Event{Kind: KindClearError})
}

// Establish persists a new session (login/register) and then marks op
// fulfilled. Nothing is applied if persisting fails.
func (m *Manager) Establish(ctx context.Context, op Op, user *models.User, tokens Tokens) error {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return fmt.Errorf("token pair is incomplete")
	}

	values := map[string]string{
		storage.KeyAccessToken:  tokens.AccessToken,
		storage.KeyRefreshToken: tokens.RefreshToken,
	}
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		values[storage.KeyUser] = string(data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if user == nil {
		// Старый кеш профиля другого пользователя не должен пережить новый login
		m.removeSession(ctx)
	}
	if err := m.store.SetMany(ctx, values); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.epoch++
	m.machine.Apply(FulfilledEvent(op, user, tokens))
	return nil
}

// Reject marks op as failed. For operations whose failure ends the session
// the stored credentials are removed first.
func (m *Manager) Reject(ctx context.Context, op Op, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ClearsSession(op) {
		m.removeSession(ctx)
		m.epoch++
	}
	m.machine.Apply(RejectedEvent(op, msg))
}

// Logout removes stored credentials and applies the logout transition.
// Store errors are logged, never returned.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeSession(ctx)
	m.epoch++
	m.machine.Apply(FulfilledEvent(OpLogout, nil, Tokens{}))
}

// ProfileLoaded completes a profile fetch. A nil user ends the session.
func (m *Manager) ProfileLoaded(ctx context.Context, user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user == nil {
		m.removeSession(ctx)
		m.epoch++
	} else if m.machine.AccessToken() != "" {
		// Кеш профиля для тёплого старта; ошибка записи не критична
		if err := m.saveUser(ctx, user); err != nil {
			m.logger.Warn("failed to cache user profile", slog.Any("error", err))
		}
	}
	m.machine.Apply(FulfilledEvent(OpFetchProfile, user, Tokens{}))
}

// ReplaceUser persists an updated profile and applies updateProfile fulfilled.
func (m *Manager) ReplaceUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.saveUser(ctx, user); err != nil {
		return err
	}
	m.machine.Apply(FulfilledEvent(OpUpdateProfile, user, Tokens{}))
	return nil
}

// Complete applies a payload-free fulfilled transition (changePassword).
func (m *Manager) Complete(op Op) {
	m.machine.Apply(FulfilledEvent(op, nil, Tokens{}))
}

// TokenRefreshed applies refreshToken fulfilled with the new access token.
func (m *Manager) TokenRefreshed(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.machine.Apply(FulfilledEvent(OpRefreshToken, nil, Tokens{AccessToken: accessToken}))
}

// RefreshToken reads the refresh token from the store together with the
// epoch it belongs to. Returns storage.ErrNotFound if there is none.
func (m *Manager) RefreshToken(ctx context.Context) (string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.store.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return "", m.epoch, err
	}
	if token == "" {
		return "", m.epoch, storage.ErrNotFound
	}
	return token, m.epoch, nil
}

// CommitAccessToken stores a refreshed access token and rotates it in the
// state, provided the session has not changed since epoch.
func (m *Manager) CommitAccessToken(ctx context.Context, epoch uint64, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch || m.machine.AccessToken() == "" {
		return ErrSessionChanged
	}
	if err := m.store.Set(ctx, storage.KeyAccessToken, accessToken); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	m.machine.Apply(Event{Kind: KindTokenRotated, Tokens: Tokens{AccessToken: accessToken}})
	return nil
}

// Expire is the global forced logout: clears the store and moves the state
// to logged-out with the session-expired flag set. A failure that belongs to
// an older epoch is dropped; Expire reports whether it applied.
func (m *Manager) Expire(ctx context.Context, epoch uint64, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		m.logger.Info("ignoring expiry of a replaced session", slog.Any("cause", cause))
		return false
	}

	m.logger.Warn("session expired, forcing logout", slog.Any("cause", cause))
	m.removeSession(ctx)
	m.epoch++
	m.machine.Apply(Event{Kind: KindSessionExpired, Error: SessionExpiredMessage})
	return true
}

// Abandon ends op without a result (caller cancelled): only IsLoading is reset.
func (m *Manager) Abandon(op Op) {
	m.logger.Debug("operation abandoned", slog.String("op", string(op)))
	m.machine.Apply(Event{Kind: KindAbandoned, Op: op})
}

// Reset unconditionally discards any session (store and state).
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeSession(ctx)
	m.epoch++
	m.machine.Apply(Event{Kind: KindReset})
}

// Restore loads a persisted session into the state. It reports whether a
// session with an access token was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	access, err := m.get(ctx, storage.KeyAccessToken)
	if err != nil {
		return false, err
	}
	if access == "" {
		return false, nil
	}
	refresh, err := m.get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return false, err
	}

	var user *models.User
	if raw, err := m.get(ctx, storage.KeyUser); err != nil {
		m.logger.Warn("failed to read cached user", slog.Any("error", err))
	} else if raw != "" {
		user = &models.User{}
		if err := json.Unmarshal([]byte(raw), user); err != nil {
			m.logger.Warn("cached user is corrupted, ignoring", slog.Any("error", err))
			user = nil
		}
	}

	m.epoch++
	m.machine.Apply(Event{
		Kind:   KindRestored,
		User:   user,
		Tokens: Tokens{AccessToken: access, RefreshToken: refresh},
	})
	return true, nil
}

// MarkInitialized sets IsInitialized without fetching a profile.
func (m *Manager) MarkInitialized() {
	m.machine.Apply(Event{Kind: KindInitialized})
}

// get возвращает "" для отсутствующего ключа
func (m *Manager) get(ctx context.Context, key string) (string, error) {
	v, err := m.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

func (m *Manager) saveUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := m.store.Set(ctx, storage.KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// removeSession удаляет ключи сессии; ошибки только логируются
func (m *Manager) removeSession(ctx context.Context) {
	if err := m.store.RemoveMany(ctx, storage.SessionKeys...); err != nil {
		m.logger.Warn("failed to clear stored credentials", slog.Any("error", err))
	}
}
