// Package model defines the data structures used throughout the application.
package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	DefaultAvatar = "default.png"
)

// User represents a registered account.
//
// Password and reset-answer hashes carry `json:"-"` so a User can be handed
// straight to writeJSON without leaking credentials.
//
// GitHubID is a pointer because most accounts are created with a password
// and never linked to GitHub; NULL keeps the UNIQUE index on github_id from
// colliding on a zero value.
type User struct {
	ID              string     `json:"id"                  db:"id"`
	Username        string     `json:"username"            db:"username"`
	Email           string     `json:"email"               db:"email"`
	PasswordHash    string     `json:"-"                   db:"password_hash"`
	Avatar          string     `json:"avatar"              db:"avatar"`
	Role            string     `json:"role"                db:"role"`
	CreatedAt       time.Time  `json:"created_at"          db:"created_at"`
	LastLogin       *time.Time `json:"last_login"          db:"last_login"`
	ResetQuestion   string     `json:"-"                   db:"reset_question"`
	ResetAnswerHash string     `json:"-"                   db:"reset_answer_hash"`
	GitHubID        *int64     `json:"githubId,omitempty"  db:"github_id"`
}

// IsAdmin reports whether the user may act on other users' content.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
