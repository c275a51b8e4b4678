package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runRefresh(ctx context.Context) error {
	c.io.Println("=== Refresh Token ===")

	if !c.authService.IsAuthenticated() {
		return fmt.Errorf("not authenticated. Please run 'medlab login' first")
	}

	if err := c.authService.RefreshToken(ctx); err != nil {
		return err
	}

	c.io.Println("✓ Access token refreshed")
	if exp, ok := c.authService.TokenExpiry(); ok {
		c.io.Printf("New token expires: %s\n", exp.Local().Format(time.RFC3339))
	}
	return nil
}

func (c *Cli) runDiscover(ctx context.Context) error {
	if c.discovery == nil {
		return fmt.Errorf("no server candidates configured (server.candidates or MEDLAB_SERVER_CANDIDATES)")
	}

	c.io.Println("=== Server Discovery ===")
	base := c.discovery.Resolve(ctx)
	c.io.Printf("Using server: %s\n", base)
	return nil
}
