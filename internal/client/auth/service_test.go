package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/medlab/internal/client/api"
	"github.com/iudanet/medlab/internal/client/session"
	"github.com/iudanet/medlab/internal/client/storage"
	"github.com/iudanet/medlab/internal/client/storage/boltdb"
	"github.com/iudanet/medlab/internal/models"
	pkgapi "github.com/iudanet/medlab/pkg/api"
)

// fakeBackend - минимальный сервер авторизации в памяти
type fakeBackend struct {
	users        map[string]string // email -> password
	access       map[string]bool
	refresh      map[string]bool
	requests     atomic.Int32
	refreshCalls atomic.Int32
	seq          int
	refreshDelay time.Duration
	mu           sync.Mutex
	logoutFails  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:   map[string]string{"a@x.com": "pw"},
		access:  make(map[string]bool),
		refresh: make(map[string]bool),
	}
}

func (b *fakeBackend) expireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]bool)
}

func (b *fakeBackend) bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (b *fakeBackend) user(email string) *models.User {
	return &models.User{ID: "u-1", Email: email, Username: "alice", FirstName: "Alice", LastName: "Smith", Role: models.RoleTechnician}
}

func (b *fakeBackend) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req pkgapi.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		defer b.mu.Unlock()
		if pw, ok := b.users[req.Email]; !ok || pw != req.Password {
			b.reply(w, http.StatusUnauthorized, pkgapi.ErrorResponse{Error: "Invalid credentials"})
			return
		}
		b.seq++
		acc, ref := fmt.Sprintf("acc-%d", b.seq), fmt.Sprintf("ref-%d", b.seq)
		b.access[acc] = true
		b.refresh[ref] = true
		b.reply(w, http.StatusOK, pkgapi.AuthResponse{Message: "Login successful", User: b.user(req.Email), AccessToken: acc, RefreshToken: ref})
	})

	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req pkgapi.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		defer b.mu.Unlock()
		if _, exists := b.users[req.Email]; exists {
			b.reply(w, http.StatusConflict, pkgapi.ErrorResponse{Error: "User with this email or username already exists"})
			return
		}
		b.users[req.Email] = req.Password
		b.seq++
		acc, ref := fmt.Sprintf("acc-%d", b.seq), fmt.Sprintf("ref-%d", b.seq)
		b.access[acc] = true
		b.refresh[ref] = true
		b.reply(w, http.StatusCreated, pkgapi.AuthResponse{Message: "User registered successfully", User: b.user(req.Email), AccessToken: acc, RefreshToken: ref})
	})

	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		b.mu.Lock()
		delay := b.refreshDelay
		b.mu.Unlock()
		time.Sleep(delay)

		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.refresh[b.bearer(r)] {
			b.reply(w, http.StatusUnauthorized, pkgapi.ErrorResponse{Error: "Invalid refresh token"})
			return
		}
		b.seq++
		acc := fmt.Sprintf("acc-%d", b.seq)
		b.access[acc] = true
		b.reply(w, http.StatusOK, pkgapi.RefreshResponse{AccessToken: acc})
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if b.logoutFails {
			b.reply(w, http.StatusInternalServerError, pkgapi.ErrorResponse{Error: "Logout failed"})
			return
		}
		b.reply(w, http.StatusOK, pkgapi.MessageResponse{Message: "Logout successful"})
	})

	mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.access[b.bearer(r)] {
			b.reply(w, http.StatusUnauthorized, pkgapi.ErrorResponse{Error: "Invalid or expired token"})
			return
		}
		b.reply(w, http.StatusOK, pkgapi.ProfileResponse{User: b.user("a@x.com")})
	})

	mux.HandleFunc("PUT /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		var req pkgapi.UpdateProfileRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.access[b.bearer(r)] {
			b.reply(w, http.StatusUnauthorized, pkgapi.ErrorResponse{Error: "Invalid or expired token"})
			return
		}
		if req.Email != nil && *req.Email == "taken@x.com" {
			b.reply(w, http.StatusConflict, pkgapi.ErrorResponse{Error: "Email already in use"})
			return
		}
		u := b.user("a@x.com")
		if req.FirstName != nil {
			u.FirstName = *req.FirstName
		}
		b.reply(w, http.StatusOK, pkgapi.ProfileResponse{Message: "Profile updated successfully", User: u})
	})

	mux.HandleFunc("POST /api/auth/change-password", func(w http.ResponseWriter, r *http.Request) {
		var req pkgapi.ChangePasswordRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.CurrentPassword != "pw" {
			b.reply(w, http.StatusForbidden, pkgapi.ErrorResponse{Error: "Current password is incorrect"})
			return
		}
		b.reply(w, http.StatusOK, pkgapi.MessageResponse{Message: "Password changed successfully"})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		mux.ServeHTTP(w, r)
	})
}

type testEnv struct {
	backend *fakeBackend
	store   *boltdb.Storage
	manager *session.Manager
	service *AuthService
	baseURL string
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	return newTestEnvAt(t, server.URL+"/api", backend, filepath.Join(t.TempDir(), "client.db"), opts...)
}

func newTestEnvAt(t *testing.T, baseURL string, backend *fakeBackend, dbPath string, opts ...Option) *testEnv {
	t.Helper()

	store, err := boltdb.New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manager := session.NewManager(store, session.NewMachine(nil), nil)
	client := api.NewClient(baseURL, manager)

	return &testEnv{
		backend: backend,
		store:   store,
		manager: manager,
		service: NewAuthService(client, manager, opts...),
		baseURL: baseURL,
	}
}

func (e *testEnv) stored(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, err := e.store.Get(context.Background(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return v, true
}

func TestAuthService_Login(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.service.Login(context.Background(), " a@x.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)

	s := env.service.State()
	assert.True(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.Error)
	assert.Equal(t, "acc-1", s.Tokens.AccessToken)
	assert.Equal(t, "ref-1", s.Tokens.RefreshToken)

	access, ok := env.stored(t, storage.KeyAccessToken)
	require.True(t, ok)
	assert.Equal(t, "acc-1", access)
	_, ok = env.stored(t, storage.KeyUser)
	assert.True(t, ok)
}

func TestAuthService_Login_Errors(t *testing.T) {
	tests := []struct {
		name         string
		email        string
		password     string
		wantMessage  string
		wantRequests int32
	}{
		{
			name:         "invalid credentials",
			email:        "a@x.com",
			password:     "wrong",
			wantMessage:  "Invalid credentials",
			wantRequests: 1,
		},
		{
			name:         "empty email",
			email:        "  ",
			password:     "pw",
			wantMessage:  "Email and password are required",
			wantRequests: 0,
		},
		{
			name:         "empty password",
			email:        "a@x.com",
			wantMessage:  "Email and password are required",
			wantRequests: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.service.Login(context.Background(), tt.email, tt.password)

			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, session.OpLogin, f.Op)
			assert.Equal(t, tt.wantMessage, f.Message)
			assert.False(t, f.Expired)

			s := env.service.State()
			assert.False(t, s.IsAuthenticated)
			assert.False(t, s.IsLoading)
			assert.Equal(t, tt.wantMessage, s.Error)
			assert.Equal(t, tt.wantRequests, env.backend.requests.Load())
			assert.Zero(t, env.backend.refreshCalls.Load())
		})
	}
}

func TestAuthService_Login_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	env := newTestEnvAt(t, url+"/api", nil, filepath.Join(t.TempDir(), "client.db"))

	_, err := env.service.Login(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	assert.Equal(t, "Login failed", err.Error())
	assert.Equal(t, "Login failed", env.service.State().Error)
}

func TestAuthService_Register(t *testing.T) {
	valid := RegisterInput{
		Email:     "new@x.com",
		Username:  "new_user",
		Password:  "secret123",
		FirstName: "New",
		LastName:  "User",
	}

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)

		user, err := env.service.Register(context.Background(), valid)
		require.NoError(t, err)
		assert.Equal(t, "new@x.com", user.Email)
		assert.True(t, env.service.IsAuthenticated())
		assert.Equal(t, "new@x.com", env.service.CurrentUser().Email)
	})

	t.Run("duplicate account", func(t *testing.T) {
		env := newTestEnv(t)
		in := valid
		in.Email = "a@x.com"

		_, err := env.service.Register(context.Background(), in)
		require.Error(t, err)
		assert.Equal(t, "User with this email or username already exists", err.Error())
		assert.False(t, env.service.IsAuthenticated())
	})

	validationCases := []struct {
		mutate func(in *RegisterInput)
		name   string
		want   string
	}{
		{name: "bad email", mutate: func(in *RegisterInput) { in.Email = "not-an-email" }, want: "Invalid email format"},
		{name: "weak password", mutate: func(in *RegisterInput) { in.Password = "password" }, want: "Password must be at least 8 characters long and contain letters and numbers"},
		{name: "short username", mutate: func(in *RegisterInput) { in.Username = "ab" }, want: "Username must be 3-20 characters long"},
		{name: "underscore username", mutate: func(in *RegisterInput) { in.Username = "_abc" }, want: "Username cannot start or end with an underscore"},
		{name: "missing first name", mutate: func(in *RegisterInput) { in.FirstName = " " }, want: "First name is required"},
		{name: "unknown role", mutate: func(in *RegisterInput) { in.Role = "root" }, want: "Invalid role"},
	}
	for _, tt := range validationCases {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := valid
			tt.mutate(&in)

			_, err := env.service.Register(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Equal(t, tt.want, env.service.State().Error)
			assert.Zero(t, env.backend.requests.Load(), "validation runs before any network call")
		})
	}
}

// TestAuthService_SessionScenario: login, профиль с истёкшим токеном
// восстанавливается через refresh, затем refresh без refresh token
// завершает сессию
func TestAuthService_SessionScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.service.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	s := env.service.State()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, "a@x.com", s.User.Email)
	assert.Empty(t, s.Error)

	env.backend.expireAccessTokens()

	user, err := env.service.FetchProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, int32(1), env.backend.refreshCalls.Load())

	after := env.service.State()
	assert.True(t, after.IsAuthenticated)
	assert.False(t, after.IsLoading)
	assert.Empty(t, after.Error)
	assert.Equal(t, s.User.Email, after.User.Email)
	assert.Equal(t, s.Tokens.RefreshToken, after.Tokens.RefreshToken)
	assert.NotEqual(t, s.Tokens.AccessToken, after.Tokens.AccessToken)

	stored, _ := env.stored(t, storage.KeyAccessToken)
	assert.Equal(t, after.Tokens.AccessToken, stored)

	require.NoError(t, env.store.RemoveMany(ctx, storage.KeyRefreshToken))
	requestsBefore := env.backend.requests.Load()

	err = env.service.RefreshToken(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrSessionExpired)
	assert.Equal(t, requestsBefore, env.backend.requests.Load(), "no network call without refresh token")

	final := env.service.State()
	assert.False(t, final.IsAuthenticated)
	assert.Nil(t, final.User)
	assert.Equal(t, session.Tokens{}, final.Tokens)
	assert.True(t, final.SessionExpired)
	assert.Equal(t, session.SessionExpiredMessage, final.Error)
	for _, key := range storage.SessionKeys {
		_, ok := env.stored(t, key)
		assert.False(t, ok, key)
	}
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()

	for _, remoteFails := range []bool{false, true} {
		t.Run(fmt.Sprintf("remote fails %v", remoteFails), func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.logoutFails = remoteFails
			_, err := env.service.Login(ctx, "a@x.com", "pw")
			require.NoError(t, err)

			env.service.Logout(ctx)
			first := env.service.State()

			env.service.Logout(ctx)
			second := env.service.State()

			assert.False(t, first.IsAuthenticated)
			assert.Empty(t, first.Error)
			assert.Equal(t, first, second, "logout is idempotent")
			for _, key := range storage.SessionKeys {
				_, ok := env.stored(t, key)
				assert.False(t, ok, key)
			}
		})
	}
}

func TestAuthService_Logout_ServerUnreachable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.service.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	// тот же store, но сервер недоступен
	offline := api.NewClient("http://127.0.0.1:1/api", env.manager, api.WithTimeout(time.Second))
	svc := NewAuthService(offline, env.manager)

	svc.Logout(ctx)
	assert.False(t, svc.IsAuthenticated())
	_, ok := env.stored(t, storage.KeyAccessToken)
	assert.False(t, ok)
}

func TestAuthService_FetchProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("not authenticated", func(t *testing.T) {
		env := newTestEnv(t)

		user, err := env.service.FetchProfile(ctx)
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.Zero(t, env.backend.requests.Load())

		s := env.service.State()
		assert.True(t, s.IsInitialized)
		assert.False(t, s.IsAuthenticated)
	})

	t.Run("refresh token revoked", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.service.Login(ctx, "a@x.com", "pw")
		require.NoError(t, err)

		env.backend.mu.Lock()
		env.backend.access = map[string]bool{}
		env.backend.refresh = map[string]bool{}
		env.backend.mu.Unlock()

		_, err = env.service.FetchProfile(ctx)
		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.True(t, f.Expired)
		assert.Equal(t, session.SessionExpiredMessage, f.Message)

		s := env.service.State()
		assert.False(t, s.IsAuthenticated)
		assert.True(t, s.SessionExpired)
		assert.True(t, s.IsInitialized)
	})

	t.Run("cached profile when server unreachable", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.service.Login(ctx, "a@x.com", "pw")
		require.NoError(t, err)

		offline := api.NewClient("http://127.0.0.1:1/api", env.manager, api.WithTimeout(time.Second))
		svc := NewAuthService(offline, env.manager)

		user, err := svc.FetchProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", user.Email)
		assert.True(t, svc.IsAuthenticated())
	})
}

func TestAuthService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.service.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	name := " Alicia "
	user, err := env.service.UpdateProfile(ctx, ProfileUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", user.FirstName)
	assert.Equal(t, "Alicia", env.service.CurrentUser().FirstName)

	cached, _ := env.stored(t, storage.KeyUser)
	assert.Contains(t, cached, `"firstName":"Alicia"`)

	taken := "taken@x.com"
	_, err = env.service.UpdateProfile(ctx, ProfileUpdate{Email: &taken})
	require.Error(t, err)
	assert.Equal(t, "Email already in use", err.Error())

	s := env.service.State()
	assert.True(t, s.IsAuthenticated, "profile failures keep the session")
	assert.Equal(t, "Alicia", s.User.FirstName)
	assert.Equal(t, "Email already in use", s.Error)

	bad := "nope"
	_, err = env.service.UpdateProfile(ctx, ProfileUpdate{Email: &bad})
	require.Error(t, err)
	assert.Equal(t, "Invalid email format", err.Error())
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.service.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	err = env.service.ChangePassword(ctx, "wrong", "newpass123")
	require.Error(t, err)
	assert.Equal(t, "Current password is incorrect", err.Error())
	assert.True(t, env.service.IsAuthenticated())

	err = env.service.ChangePassword(ctx, "pw", "short")
	require.Error(t, err)
	assert.Equal(t, "Password must be at least 8 characters long and contain letters and numbers", err.Error())

	require.NoError(t, env.service.ChangePassword(ctx, "pw", "newpass123"))
	s := env.service.State()
	assert.Empty(t, s.Error)
	assert.False(t, s.IsLoading)
	assert.True(t, s.IsAuthenticated)
}

func TestAuthService_RefreshToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, err := env.service.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	require.NoError(t, env.service.RefreshToken(ctx))

	s := env.service.State()
	assert.Equal(t, "acc-2", s.Tokens.AccessToken)
	assert.Equal(t, "ref-1", s.Tokens.RefreshToken)
	assert.False(t, s.IsLoading)
}

func TestAuthService_RefreshToken_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.Login(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	env.backend.mu.Lock()
	env.backend.refreshDelay = 200 * time.Millisecond
	env.backend.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, env.service.RefreshToken(ctx))

	s := env.service.State()
	assert.True(t, s.IsAuthenticated, "cancellation keeps the session")
	assert.False(t, s.IsLoading)
	assert.False(t, s.SessionExpired)
	assert.Equal(t, "ref-1", s.Tokens.RefreshToken)

	refresh, ok := env.stored(t, storage.KeyRefreshToken)
	require.True(t, ok)
	assert.Equal(t, "ref-1", refresh)

	// начатый refresh доходит до конца без вызывающего
	assert.Eventually(t, func() bool {
		return env.service.AccessToken() == "acc-2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAuthService_RequiresSession(t *testing.T) {
	ctx := context.Background()

	t.Run("update profile", func(t *testing.T) {
		env := newTestEnv(t)
		name := "Alicia"

		_, err := env.service.UpdateProfile(ctx, ProfileUpdate{FirstName: &name})

		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.Equal(t, "Not authenticated", f.Message)
		assert.False(t, f.Expired)
		assert.Zero(t, env.backend.requests.Load())
		assert.Zero(t, env.backend.refreshCalls.Load())

		s := env.service.State()
		assert.False(t, s.SessionExpired)
		assert.False(t, s.IsLoading)
		assert.Equal(t, "Not authenticated", s.Error)
	})

	t.Run("change password", func(t *testing.T) {
		env := newTestEnv(t)

		err := env.service.ChangePassword(ctx, "pw", "newpass123")

		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.Equal(t, "Not authenticated", f.Message)
		assert.False(t, f.Expired)
		assert.Zero(t, env.backend.requests.Load())

		s := env.service.State()
		assert.False(t, s.SessionExpired)
		assert.Equal(t, "Not authenticated", s.Error)
	})

	t.Run("after logout", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.service.Login(ctx, "a@x.com", "pw")
		require.NoError(t, err)
		env.service.Logout(ctx)
		before := env.backend.requests.Load()

		err = env.service.ChangePassword(ctx, "pw", "newpass123")
		require.Error(t, err)
		assert.Equal(t, "Not authenticated", err.Error())
		assert.Equal(t, before, env.backend.requests.Load())
		assert.False(t, env.service.State().SessionExpired)
	})
}

func TestAuthService_ClearError(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.service.Login(context.Background(), "a@x.com", "wrong")
	require.NotEmpty(t, env.service.State().Error)

	env.service.ClearError()
	assert.Empty(t, env.service.State().Error)
}

func TestAuthService_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("restores stored session", func(t *testing.T) {
		backend := newFakeBackend()
		server := httptest.NewServer(backend.handler())
		defer server.Close()
		dbPath := filepath.Join(t.TempDir(), "client.db")

		first := newTestEnvAt(t, server.URL+"/api", backend, dbPath)
		_, err := first.service.Login(ctx, "a@x.com", "pw")
		require.NoError(t, err)
		require.NoError(t, first.store.Close())

		second := newTestEnvAt(t, server.URL+"/api", backend, dbPath)
		s := second.service.Initialize(ctx)

		assert.True(t, s.IsInitialized)
		assert.True(t, s.IsAuthenticated)
		assert.Equal(t, "a@x.com", s.User.Email)
	})

	t.Run("force logout on launch", func(t *testing.T) {
		backend := newFakeBackend()
		server := httptest.NewServer(backend.handler())
		defer server.Close()
		dbPath := filepath.Join(t.TempDir(), "client.db")

		first := newTestEnvAt(t, server.URL+"/api", backend, dbPath)
		_, err := first.service.Login(ctx, "a@x.com", "pw")
		require.NoError(t, err)
		require.NoError(t, first.store.Close())

		second := newTestEnvAt(t, server.URL+"/api", backend, dbPath, WithForceLogoutOnLaunch(true))
		s := second.service.Initialize(ctx)

		assert.True(t, s.IsInitialized)
		assert.False(t, s.IsAuthenticated)
		_, ok := second.stored(t, storage.KeyRefreshToken)
		assert.False(t, ok)
	})

	t.Run("empty store", func(t *testing.T) {
		env := newTestEnv(t)
		s := env.service.Initialize(ctx)
		assert.True(t, s.IsInitialized)
		assert.False(t, s.IsAuthenticated)
		assert.Empty(t, s.Error)
	})
}

func TestAuthService_TokenExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, ok := env.service.TokenExpiry()
	assert.False(t, ok)

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	require.NoError(t, env.manager.Establish(ctx, session.OpLogin, nil, session.Tokens{AccessToken: signed, RefreshToken: "r"}))

	got, ok := env.service.TokenExpiry()
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	// непрозрачный токен без claims
	require.NoError(t, env.manager.Establish(ctx, session.OpLogin, nil, session.Tokens{AccessToken: "opaque", RefreshToken: "r"}))
	_, ok = env.service.TokenExpiry()
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		err         error
		name        string
		wantMessage string
		wantExpired bool
	}{
		{
			name:        "api error",
			err:         fmt.Errorf("wrapped: %w", &api.APIError{StatusCode: 400, Message: "Validation failed"}),
			wantMessage: "Validation failed",
		},
		{
			name:        "refresh error",
			err:         &api.RefreshError{Cause: api.ErrNoRefreshToken},
			wantMessage: session.SessionExpiredMessage,
			wantExpired: true,
		},
		{
			name:        "replayed request rejected",
			err:         fmt.Errorf("%w: %w", api.ErrSessionExpired, &api.APIError{StatusCode: 401, Message: "Invalid token"}),
			wantMessage: session.SessionExpiredMessage,
			wantExpired: true,
		},
		{
			name:        "transport error",
			err:         errors.New("dial tcp: connection refused"),
			wantMessage: "Failed to get profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := normalize(session.OpFetchProfile, tt.err)
			assert.Equal(t, tt.wantMessage, f.Message)
			assert.Equal(t, tt.wantExpired, f.Expired)
			assert.Equal(t, tt.wantExpired, errors.Is(f, api.ErrSessionExpired))
			assert.Nil(t, errors.Unwrap(f), "the structured cause is not propagated")
		})
	}
}
