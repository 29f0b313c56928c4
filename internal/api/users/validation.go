package users

import (
	"fmt"
	"regexp"
)

var (
	// Usernames start with a letter and allow letters, digits,
	// underscores and hyphens, 3 to 32 characters total.
	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{2,31}$`)

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidateUsername checks username format constraints.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must start with a letter and contain only letters, digits, underscores and hyphens (3-32 characters)")
	}
	return nil
}

// ValidateEmail checks basic email format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateRole checks that the role is one of the known roles.
func ValidateRole(role string) error {
	switch role {
	case "admin", "analyst", "viewer":
		return nil
	default:
		return fmt.Errorf("role must be one of: admin, analyst, viewer")
	}
}
