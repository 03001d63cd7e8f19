package auth

import "time"

// DefaultRoleName is assigned on registration when no role is supplied.
const DefaultRoleName = "Cliente"

type Permission struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"role_id"`
	Role         *Role     `json:"role,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSummary is the client-facing view of a user.
type UserSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Session is what login and registration hand back to the client.
type Session struct {
	Token string      `json:"token"`
	Role  string      `json:"role"`
	User  UserSummary `json:"user"`
}
