package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/medlab/pkg/api"
)

// DefaultDiscoveryTimeout на одну проверку кандидата
const DefaultDiscoveryTimeout = 5 * time.Second

// Discovery picks a reachable server from a list of candidate base URLs.
// The probe runs once; later calls reuse the result.
type Discovery struct {
	httpClient *http.Client
	logger     *slog.Logger
	result     string
	candidates []string
	once       sync.Once
}

// NewDiscovery creates a discovery over candidates (base URLs with the API prefix)
func NewDiscovery(candidates []string, timeout time.Duration, logger *slog.Logger) *Discovery {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		candidates: candidates,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve returns the first candidate whose /health answers 2xx. If none
// does, the first candidate is returned. Returns "" for an empty list.
func (d *Discovery) Resolve(ctx context.Context) string {
	d.once.Do(func() {
		d.result = d.probe(ctx)
	})
	return d.result
}

func (d *Discovery) probe(ctx context.Context) string {
	if len(d.candidates) == 0 {
		return ""
	}

	for _, base := range d.candidates {
		base = strings.TrimRight(base, "/")
		if err := checkHealth(ctx, d.httpClient, base); err != nil {
			d.logger.Debug("server candidate unavailable", slog.String("url", base), slog.Any("error", err))
			continue
		}
		d.logger.Info("server discovered", slog.String("url", base))
		return base
	}

	fallback := strings.TrimRight(d.candidates[0], "/")
	d.logger.Warn("no healthy server found, using first candidate", slog.String("url", fallback))
	return fallback
}

// checkHealth выполняет GET <base>/health
func checkHealth(ctx context.Context, hc *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body)
	}

	// Тело не обязательно; если status есть, он должен быть "ok"
	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err == nil && health.Status != "" && !strings.EqualFold(health.Status, "ok") {
		return fmt.Errorf("server status %q", health.Status)
	}
	return nil
}
