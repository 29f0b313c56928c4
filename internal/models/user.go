package models

import (
	"time"
)

// Role represents a user's permission level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// User represents an account on the API.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// NewUser creates a new User with initialized timestamps.
func NewUser(username, email string, role Role) *User {
	now := time.Now()
	return &User{
		Username:  username,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanUpload returns true if the user may ingest new log files.
// Viewers are read-only.
func (u *User) CanUpload() bool {
	return u.Role == RoleAdmin || u.Role == RoleAnalyst
}

// ParseRole converts a string to a Role, defaulting to viewer.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "analyst":
		return RoleAnalyst
	default:
		return RoleViewer
	}
}
