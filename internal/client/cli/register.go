package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/medlab/internal/client/auth"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	var in auth.RegisterInput
	prompts := []struct {
		dst    *string
		prompt string
	}{
		{&in.Email, "Email: "},
		{&in.Username, "Username: "},
		{&in.FirstName, "First name: "},
		{&in.LastName, "Last name: "},
		{&in.Role, "Role (technician/supervisor/admin, empty for technician): "},
	}
	for _, p := range prompts {
		v, err := c.io.ReadInput(p.prompt)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		*p.dst = v
	}

	password, err := c.getPassword("Password (min 8 chars, letters and digits): ")
	if err != nil {
		return err
	}
	// Подтверждение только для интерактивного ввода
	if c.passwords == (Passwords{}) && !hasPasswordEnv() {
		confirm, err := c.io.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}
	in.Password = password

	c.io.Println()
	c.io.Println("Registering user...")

	user, err := c.authService.Register(ctx, in)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", user.ID)
	c.io.Printf("Username: %s\n", user.Username)
	c.io.Println("You are now logged in.")
	return nil
}
