package entity

import "strings"

// Role is the category a user acts under. It is carried in tokens as-is and
// never interpreted into permissions here.
type Role string

func (r Role) String() string {
	return string(r)
}

// Identity is the subject a token is issued for. The account datastore owns
// it; callers supply one per issuance.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func NewIdentity(id string, role Role) Identity {
	return Identity{
		ID:   strings.TrimSpace(id),
		Role: role,
	}
}

func (i Identity) IsValid() bool {
	return strings.TrimSpace(i.ID) != ""
}
