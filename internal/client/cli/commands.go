package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/medlab/internal/client/api"
)

// ErrUnknownCommand is returned by Run for an unsupported command
var ErrUnknownCommand = errors.New("unknown command")

// Run выполняет команду. Перед командами, работающими с сессией,
// сохранённая сессия восстанавливается и проверяется.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "discover":
		return c.runDiscover(ctx)
	case "help":
		PrintUsage(c.io)
		return nil
	}

	var run func(context.Context) error
	switch command {
	case "register":
		run = c.runRegister
	case "login":
		run = func(ctx context.Context) error { return c.runLogin(ctx, args) }
	case "logout":
		run = c.runLogout
	case "status":
		run = c.runStatus
	case "profile":
		run = c.runProfile
	case "update-profile":
		run = func(ctx context.Context) error { return c.runUpdateProfile(ctx, args) }
	case "change-password":
		run = c.runChangePassword
	case "refresh":
		run = c.runRefresh
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	c.authService.Initialize(ctx)

	err := run(ctx)
	if errors.Is(err, api.ErrSessionExpired) {
		c.io.Println()
		c.io.Println("Your session has ended. Run 'medlab login' to authenticate.")
	}
	return err
}
