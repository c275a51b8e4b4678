package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/iudanet/medlab/internal/client/auth"
)

func (c *Cli) runProfile(ctx context.Context) error {
	c.io.Println("=== Profile ===")
	c.io.Println()

	if !c.authService.IsAuthenticated() {
		return fmt.Errorf("not authenticated. Please run 'medlab login' first")
	}

	user, err := c.authService.FetchProfile(ctx)
	if err != nil {
		return err
	}
	c.printUser(user)
	return nil
}

func (c *Cli) runUpdateProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update-profile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	email := fs.String("email", "", "email")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	// nil - поле не передано
	var update auth.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first-name":
			update.FirstName = firstName
		case "last-name":
			update.LastName = lastName
		case "email":
			update.Email = email
		}
	})
	if update == (auth.ProfileUpdate{}) {
		return fmt.Errorf("nothing to update: use -first-name, -last-name or -email")
	}

	if !c.authService.IsAuthenticated() {
		return fmt.Errorf("not authenticated. Please run 'medlab login' first")
	}

	user, err := c.authService.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}

	c.io.Println("✓ Profile updated")
	c.io.Println()
	c.printUser(user)
	return nil
}
