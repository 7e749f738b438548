package domain

import "time"

// User is an account that can authenticate against the API. Staff users are
// elevated callers with full lifecycle control over every ticket.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsStaff      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary returns the public projection of the user.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}

// UserSummary is the subset of user fields embedded in ticket representations.
type UserSummary struct {
	ID       string
	Username string
	Email    string
}
