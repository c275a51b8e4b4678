package cli

import (
	"context"
	"time"
)

func (c *Cli) runStatus(_ context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	s := c.authService.State()
	if !s.IsAuthenticated {
		c.io.Println("Status: Not authenticated")
		if s.SessionExpired || s.Error != "" {
			c.io.Printf("Reason: %s\n", s.Error)
		}
		c.io.Println()
		c.io.Println("Run 'medlab login' to authenticate.")
		return nil
	}

	c.io.Println("Status: Authenticated")
	if s.User != nil {
		c.io.Printf("User: %s <%s>\n", s.User.DisplayName(), s.User.Email)
	}

	if exp, ok := c.authService.TokenExpiry(); ok {
		c.io.Printf("Access token expires: %s\n", exp.Local().Format(time.RFC3339))
		if remaining := time.Until(exp); remaining > 0 {
			c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
		} else {
			c.io.Println("⚠️  Access token has expired; it will be refreshed on the next request.")
		}
	}
	return nil
}
