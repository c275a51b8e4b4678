package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/medlab/internal/client/session"
	"github.com/iudanet/medlab/internal/client/storage"
	"github.com/iudanet/medlab/pkg/api"
)

const refreshKey = "refresh"

// refreshResult - access token и эпоха сессии, к которой он относится
type refreshResult struct {
	token string
	epoch uint64
}

// Refresh exchanges the stored refresh token for a new access token.
// Concurrent callers share one in-flight refresh and its result. On failure
// the session is cleared and a *RefreshError is returned.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	res, err := c.refreshSession(ctx)
	if err != nil {
		return "", err
	}
	return res.token, nil
}

func (c *Client) refreshSession(ctx context.Context) (refreshResult, error) {
	ch := c.refresh.DoChan(refreshKey, func() (any, error) {
		// Отмена контекста одного вызывающего не должна ронять refresh для остальных
		return c.runRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return refreshResult{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight token refresh")
		}
		return res.Val.(refreshResult), nil
	case <-ctx.Done():
		return refreshResult{}, ctx.Err()
	}
}

func (c *Client) runRefresh(ctx context.Context) (refreshResult, error) {
	if c.creds == nil {
		return refreshResult{}, &RefreshError{Cause: ErrNoRefreshToken}
	}

	refreshToken, epoch, err := c.creds.RefreshToken(ctx)
	if err != nil {
		cause := err
		if errors.Is(err, storage.ErrNotFound) {
			cause = ErrNoRefreshToken
		}
		return c.failRefresh(ctx, epoch, cause)
	}

	var resp api.RefreshResponse
	// refresh token идёт как bearer вместо access token
	err = c.send(ctx, call{method: http.MethodPost, path: "/auth/refresh", result: &resp}, refreshToken)
	if err == nil && resp.AccessToken == "" {
		err = ErrMalformedRefresh
	}
	if err != nil {
		return c.failRefresh(ctx, epoch, err)
	}

	if err := c.creds.CommitAccessToken(ctx, epoch, resp.AccessToken); err != nil {
		if errors.Is(err, session.ErrSessionChanged) {
			// Сессию заменили, пока шёл refresh: новый логин или logout
			return c.liveSession(err)
		}
		return c.failRefresh(ctx, epoch, err)
	}

	c.logger.Info("access token refreshed")
	return refreshResult{token: resp.AccessToken, epoch: epoch}, nil
}

// failRefresh завершает сессию epoch. Если её уже заменили, новая сессия
// не трогается и вызывающий продолжает с её токеном.
func (c *Client) failRefresh(ctx context.Context, epoch uint64, cause error) (refreshResult, error) {
	if !c.creds.Expire(ctx, epoch, cause) {
		c.logger.Info("token refresh of a replaced session failed", slog.Any("error", cause))
		return c.liveSession(fmt.Errorf("%w: %w", session.ErrSessionChanged, cause))
	}
	c.logger.Warn("token refresh failed", slog.Any("error", cause))
	return refreshResult{}, &RefreshError{Cause: cause}
}

func (c *Client) liveSession(cause error) (refreshResult, error) {
	if live, epoch := c.creds.AccessTokenEpoch(); live != "" {
		return refreshResult{token: live, epoch: epoch}, nil
	}
	return refreshResult{}, &RefreshError{Cause: cause}
}
