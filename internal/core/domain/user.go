package domain

import "time"

const (
	AuthorityUser  = "USER"
	AuthorityAdmin = "ADMIN"
)

// AccountStatus gates whether a user may authenticate.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
)

// User models an account in the identity store.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"`
	Verified     bool          `json:"verified"`
	Status       AccountStatus `json:"status"`
	Authorities  []string      `json:"authorities"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// CanAuthenticate reports whether the account is allowed to hold a session.
func (u *User) CanAuthenticate() bool {
	return u.Status == AccountActive
}
