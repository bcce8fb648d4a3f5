package domain

import "time"

// User represents a storefront customer. Accounts created implicitly by a
// guest order have no password until the customer registers.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at" db:"last_login_at"`

	Strava *TokenRecord `json:"-" db:"-"`
}

// HasPassword reports whether the account was registered, as opposed to
// created from a guest checkout.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// GuestTokenSession is the persisted Strava connection of an anonymous visitor.
type GuestTokenSession struct {
	ID        int64       `db:"id"`
	GuestID   string      `db:"guest_id"`
	Token     TokenRecord `db:"-"`
	CreatedAt time.Time   `db:"created_at"`
}

// SessionClaims are carried in the signed browser session cookie.
type SessionClaims struct {
	SessionID     string
	UserID        string
	GuestID       string
	SkipIncrement bool
	ExpiresAt     time.Time
}

// Principal resolves the principal the session currently acts as.
// Authenticated sessions always act as their account.
func (c SessionClaims) Principal() (Principal, bool) {
	switch {
	case c.UserID != "":
		return Account(c.UserID), true
	case c.GuestID != "":
		return Guest(c.GuestID), true
	default:
		return Principal{}, false
	}
}
