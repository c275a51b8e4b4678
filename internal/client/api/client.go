package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/iudanet/medlab/internal/client/session"
	"github.com/iudanet/medlab/internal/models"
	"github.com/iudanet/medlab/pkg/api"
)

// DefaultTimeout для одного HTTP запроса
const DefaultTimeout = 30 * time.Second

// Credentials is the session the client works on behalf of.
// session.Manager implements it.
type Credentials interface {
	// AccessToken returns the live access token, "" when logged out
	AccessToken() string

	// AccessTokenEpoch returns the live access token and the epoch of its session
	AccessTokenEpoch() (string, uint64)

	// RefreshToken returns the stored refresh token and the epoch of the
	// session it belongs to
	RefreshToken(ctx context.Context) (string, uint64, error)

	// CommitAccessToken stores a refreshed access token if the session is
	// still the one identified by epoch
	CommitAccessToken(ctx context.Context, epoch uint64, accessToken string) error

	// Expire clears the stored and in-memory session (forced logout) if it
	// is still the one identified by epoch; reports whether it did
	Expire(ctx context.Context, epoch uint64, cause error) bool
}

// Client представляет HTTP клиент для взаимодействия с сервером.
// Every authenticated call carries the live access token; a 401 triggers one
// shared refresh and a single replay of the call.
type Client struct {
	httpClient *http.Client
	creds      Credentials
	logger     *slog.Logger
	refresh    singleflight.Group
	baseURL    string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient создает новый API клиент. baseURL includes the API prefix,
// e.g. http://localhost:5000/api.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		logger:  slog.Default(),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	var resp api.AuthResponse
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "/auth/login", body: req, result: &resp})
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	var resp api.AuthResponse
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "/auth/register", body: req, result: &resp})
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Logout уведомляет сервер о выходе. A 401 here is not recovered: the
// session is being discarded anyway.
func (c *Client) Logout(ctx context.Context) error {
	var resp api.MessageResponse
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "/auth/logout", result: &resp, auth: true})
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// GetProfile получает профиль текущего пользователя
func (c *Client) GetProfile(ctx context.Context) (*models.User, error) {
	var resp api.ProfileResponse
	err := c.doRequest(ctx, call{method: http.MethodGet, path: "/auth/profile", result: &resp, auth: true, recover: true})
	if err != nil {
		return nil, fmt.Errorf("get profile request failed: %w", err)
	}
	return resp.User, nil
}

// UpdateProfile обновляет профиль и возвращает новую запись
func (c *Client) UpdateProfile(ctx context.Context, req api.UpdateProfileRequest) (*models.User, error) {
	var resp api.ProfileResponse
	err := c.doRequest(ctx, call{method: http.MethodPut, path: "/auth/profile", body: req, result: &resp, auth: true, recover: true})
	if err != nil {
		return nil, fmt.Errorf("update profile request failed: %w", err)
	}
	return resp.User, nil
}

// ChangePassword меняет пароль текущего пользователя
func (c *Client) ChangePassword(ctx context.Context, req api.ChangePasswordRequest) error {
	var resp api.MessageResponse
	err := c.doRequest(ctx, call{method: http.MethodPost, path: "/auth/change-password", body: req, result: &resp, auth: true, recover: true})
	if err != nil {
		return fmt.Errorf("change password request failed: %w", err)
	}
	return nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	return checkHealth(ctx, c.httpClient, c.baseURL)
}

// call describes one logical request. retried is carried by value through
// the replay path and is never stored on the transport request.
type call struct {
	body    any
	result  any
	method  string
	path    string
	epoch   uint64 // сессия, чей токен ушёл в последней попытке
	auth    bool   // attach the access token
	recover bool   // refresh and replay once on 401
	retried bool
}

// doRequest выполняет вызов с подстановкой токена и восстановлением после 401
func (c *Client) doRequest(ctx context.Context, cl call) error {
	var token string
	if cl.auth {
		token, cl.epoch = c.attachCredentials()
	}
	err := c.send(ctx, cl, token)
	return c.onResponse(ctx, cl, token, err)
}

// attachCredentials reads the live access token at dispatch time
func (c *Client) attachCredentials() (string, uint64) {
	if c.creds == nil {
		return "", 0
	}
	return c.creds.AccessTokenEpoch()
}

func (c *Client) onResponse(ctx context.Context, cl call, sentToken string, err error) error {
	if err == nil || !cl.recover || !IsUnauthorized(err) {
		return err
	}

	if cl.retried {
		c.logger.Warn("request rejected after token refresh",
			slog.String("method", cl.method), slog.String("path", cl.path))
		if c.creds != nil && !c.creds.Expire(ctx, cl.epoch, err) {
			// Отказ относится к уже заменённой сессии
			return fmt.Errorf("%w: %w", session.ErrSessionChanged, err)
		}
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	cl.retried = true

	// Токен уже обновил другой запрос, пока этот был в полёте
	if live, epoch := c.attachCredentials(); live != "" && live != sentToken {
		c.logger.Debug("replaying with already refreshed token", slog.String("path", cl.path))
		cl.epoch = epoch
		return c.onResponse(ctx, cl, live, c.send(ctx, cl, live))
	}

	res, rerr := c.refreshSession(ctx)
	if rerr != nil {
		return rerr
	}
	cl.epoch = res.epoch

	c.logger.Debug("replaying request after token refresh", slog.String("path", cl.path))
	return c.onResponse(ctx, cl, res.token, c.send(ctx, cl, res.token))
}

// send выполняет один HTTP запрос
func (c *Client) send(ctx context.Context, cl call, bearer string) error {
	url := c.baseURL + cl.path

	var bodyReader io.Reader
	if cl.body != nil {
		jsonData, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.logger.Debug("sending request",
		slog.String("method", cl.method),
		slog.String("path", cl.path),
		slog.String("request_id", requestID),
		slog.Bool("authorized", bearer != ""),
		slog.Bool("retried", cl.retried))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	// Декодируем успешный ответ
	if cl.result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, cl.result); err != nil {
			c.logger.Error("failed to decode response",
				slog.String("path", cl.path), slog.String("request_id", requestID), slog.Any("error", err))
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
		apiErr.Details = errResp.Details
	}
	return apiErr
}
