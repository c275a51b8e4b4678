package cli

import (
	"sort"
	"time"

	"github.com/iudanet/medlab/internal/models"
)

// printUser выводит профиль пользователя
func (c *Cli) printUser(u *models.User) {
	if u == nil {
		c.io.Println("No profile loaded")
		return
	}

	c.io.Printf("Name:       %s\n", u.DisplayName())
	c.io.Printf("Email:      %s\n", u.Email)
	c.io.Printf("Username:   %s\n", u.Username)
	c.io.Printf("Role:       %s\n", u.Role)
	if u.Department != "" {
		c.io.Printf("Department: %s\n", u.Department)
	}
	if u.PhoneNumber != nil {
		c.io.Printf("Phone:      %s\n", *u.PhoneNumber)
	}
	if u.LicenseNumber != nil {
		c.io.Printf("License:    %s\n", *u.LicenseNumber)
	}
	if u.LastLogin != nil {
		c.io.Printf("Last login: %s\n", u.LastLogin.Local().Format(time.RFC3339))
	}

	granted := grantedPermissions(u.Permissions)
	if len(granted) > 0 {
		c.io.Println("Permissions:")
		for _, p := range granted {
			c.io.Printf("  - %s\n", p)
		}
	}
}

func grantedPermissions(perms map[string]bool) []string {
	var granted []string
	for name, ok := range perms {
		if ok {
			granted = append(granted, name)
		}
	}
	sort.Strings(granted)
	return granted
}
