// Package server собирает reference backend: маршруты /api/auth/*, health,
// middleware и фоновые задачи.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/medlab/internal/server/config"
	"github.com/iudanet/medlab/internal/server/handlers"
	"github.com/iudanet/medlab/internal/server/middleware"
	"github.com/iudanet/medlab/internal/server/storage"
)

// APIPrefix - префикс всех маршрутов; клиент использует его в base URL
const APIPrefix = "/api"

// Store объединяет всё, что нужно серверу от хранилища
type Store interface {
	storage.UserStorage
	storage.TokenStorage
	handlers.Pinger
}

// Server - HTTP сервер аутентификации
type Server struct {
	logger  *slog.Logger
	store   Store
	limiter *middleware.RateLimiter
	cfg     *config.Config
	jwt     handlers.JWTConfig
}

// New создает сервер
func New(cfg *config.Config, store Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		jwt: handlers.JWTConfig{
			Secret:          []byte(cfg.JWT.Secret),
			AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
			RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
		},
	}
}

// Handler возвращает корневой http.Handler со всеми маршрутами
func (s *Server) Handler() http.Handler {
	auth := handlers.NewAuthHandler(s.logger, s.store, s.store, s.jwt)
	health := handlers.NewHealthHandler(s.logger, s.store)

	requireAuth := middleware.AuthMiddleware(s.logger, s.jwt)
	limit := s.limiter.Limit(s.logger)

	mux := http.NewServeMux()

	// Public
	mux.Handle("POST "+APIPrefix+"/auth/register", limit(http.HandlerFunc(auth.Register)))
	mux.Handle("POST "+APIPrefix+"/auth/login", limit(http.HandlerFunc(auth.Login)))
	mux.HandleFunc("POST "+APIPrefix+"/auth/refresh", auth.Refresh)
	mux.HandleFunc("GET "+APIPrefix+"/health", health.Health)

	// Protected
	mux.Handle("POST "+APIPrefix+"/auth/logout", requireAuth(http.HandlerFunc(auth.Logout)))
	mux.Handle("GET "+APIPrefix+"/auth/profile", requireAuth(http.HandlerFunc(auth.GetProfile)))
	mux.Handle("PUT "+APIPrefix+"/auth/profile", requireAuth(http.HandlerFunc(auth.UpdateProfile)))
	mux.Handle("POST "+APIPrefix+"/auth/change-password", requireAuth(http.HandlerFunc(auth.ChangePassword)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(s.logger, w, "Route not found", http.StatusNotFound)
	})

	var h http.Handler = mux
	h = middleware.LoggingMiddleware(s.logger, APIPrefix+"/health")(h)
	h = middleware.RecoveryMiddleware(s.logger)(h)
	return h
}

// Run слушает cfg.HTTP.Addr до отмены ctx, затем выполняет graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает запросы на ln до отмены ctx
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: s.cfg.HTTP.ReadTimeout,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go s.limiter.Run(bgCtx)
	go s.cleanupTokens(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cleanupTokens периодически удаляет просроченные refresh токены
func (s *Server) cleanupTokens(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Database.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredTokens(ctx, time.Now())
			if err != nil {
				s.logger.WarnContext(ctx, "failed to delete expired tokens", slog.Any("error", err))
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired refresh tokens deleted", slog.Int("count", n))
			}
		}
	}
}
