package domain

import "fmt"

// PrincipalKind distinguishes durable accounts from browser-scoped guests.
type PrincipalKind int

const (
	PrincipalAccount PrincipalKind = iota + 1
	PrincipalGuest
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalAccount:
		return "account"
	case PrincipalGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Principal is either a registered account or an anonymous guest session.
// Both can hold one Strava TokenRecord.
type Principal struct {
	Kind PrincipalKind
	ID   string
}

// Account returns the principal for a registered user.
func Account(userID string) Principal {
	return Principal{Kind: PrincipalAccount, ID: userID}
}

// Guest returns the principal for an anonymous browser session.
func Guest(guestID string) Principal {
	return Principal{Kind: PrincipalGuest, ID: guestID}
}

func (p Principal) IsGuest() bool {
	return p.Kind == PrincipalGuest
}

func (p Principal) IsZero() bool {
	return p.ID == "" || (p.Kind != PrincipalAccount && p.Kind != PrincipalGuest)
}

// String returns "kind:id", used as lock key and log field.
func (p Principal) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.ID)
}
