package model

import "time"

// Role is the permission level of a User.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an authenticatable principal.
//
// PasswordHash is empty for OAuth-only accounts (signed up through GitHub).
// It is never serialised: the `json:"-"` tag keeps it out of every response.
//
// GitHubID is nil until the account signs in with GitHub once. The column is
// UNIQUE, so one GitHub account maps to exactly one user row.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user currently holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
