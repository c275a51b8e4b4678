package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/iudanet/medlab/internal/client/api"
	"github.com/iudanet/medlab/internal/client/auth"
	"github.com/iudanet/medlab/internal/client/iocli"
)

// PasswordEnv is the environment variable checked first for the account password
const PasswordEnv = "MEDLAB_PASSWORD"

// Passwords describes non-interactive password sources
type Passwords struct {
	FromFile string
	FromArgs string
}

// Cli - слой представления: читает ввод, вызывает операцию, печатает состояние
type Cli struct {
	io          iocli.IO
	authService auth.Service
	discovery   *api.Discovery
	passwords   Passwords
}

// New создает CLI. discovery может быть nil, тогда команда discover недоступна
func New(io iocli.IO, authService auth.Service, discovery *api.Discovery, passwords Passwords) *Cli {
	return &Cli{
		io:          io,
		authService: authService,
		discovery:   discovery,
		passwords:   passwords,
	}
}

// getPassword retrieves the account password with priority:
// 1. Environment variable MEDLAB_PASSWORD
// 2. File specified in passwords.FromFile
// 3. Command-line parameter
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(prompt string) (string, error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	// Priority 2: File
	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	// Priority 3: CLI parameter
	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, nil
	}

	// Priority 4: Interactive prompt (fallback)
	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// PrintUsage печатает справку
func PrintUsage(io iocli.IO) {
	io.Println("MedLab Client")
	io.Println()
	io.Println("Usage:")
	io.Println("  medlab [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  -version                 Show version information")
	io.Println("  -config PATH             Path to YAML config (default: medlab-client.yaml)")
	io.Println("  -server URL              API base URL, e.g. http://localhost:5000/api")
	io.Println("  -db PATH                 Path to local credential database")
	io.Println("  -password PASSWORD       Account password (not recommended, use env var or file)")
	io.Println("  -password-file PATH      Path to file containing the account password")
	io.Println()
	io.Println("Password Priority (highest to lowest):")
	io.Println("  1. MEDLAB_PASSWORD environment variable")
	io.Println("  2. -password-file (file path)")
	io.Println("  3. -password (command line)")
	io.Println("  4. Interactive prompt (fallback)")
	io.Println()
	io.Println("Commands:")
	io.Println("  register                 Create an account and log in")
	io.Println("  login [EMAIL]            Log in")
	io.Println("  logout                   Log out (local session is always removed)")
	io.Println("  status                   Show session status")
	io.Println("  profile                  Show the current user profile")
	io.Println("  update-profile FLAGS     Update profile: -first-name, -last-name, -email")
	io.Println("  change-password          Change the account password")
	io.Println("  refresh                  Refresh the access token")
	io.Println("  discover                 Probe configured server candidates")
	io.Println()
	io.Println("Examples:")
	io.Println("  medlab login tech@lab.example.com")
	io.Println("  medlab update-profile -first-name Anna")
	io.Println("  medlab -server https://lab.example.com/api status")
}
