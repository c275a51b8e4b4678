package cli

import (
	"context"
	"fmt"
	"os"
)

func (c *Cli) runChangePassword(ctx context.Context) error {
	c.io.Println("=== Change Password ===")
	c.io.Println()

	if !c.authService.IsAuthenticated() {
		return fmt.Errorf("not authenticated. Please run 'medlab login' first")
	}

	current, err := c.getPassword("Current password: ")
	if err != nil {
		return err
	}

	newPassword, err := c.io.ReadPassword("New password: ")
	if err != nil {
		return fmt.Errorf("failed to read new password: %w", err)
	}
	confirm, err := c.io.ReadPassword("Confirm new password: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if newPassword != confirm {
		return fmt.Errorf("passwords do not match")
	}

	if err := c.authService.ChangePassword(ctx, current, newPassword); err != nil {
		return err
	}

	c.io.Println("✓ Password changed successfully")
	return nil
}

func hasPasswordEnv() bool {
	return os.Getenv(PasswordEnv) != ""
}
