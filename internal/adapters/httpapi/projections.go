package httpapi

import "peerhub/pkg/domain"

// publicUser is the view of a user anyone may read.
type publicUser struct {
	Name        string           `json:"name"`
	PublicKey   domain.PublicKey `json:"public_key"`
	Description *string          `json:"description,omitempty"`
}

func public(u domain.User) publicUser {
	return publicUser{Name: u.Name, PublicKey: u.PublicKey, Description: u.Description}
}

func publicUsers(users []domain.User) []publicUser {
	out := make([]publicUser, 0, len(users))
	for _, u := range users {
		out = append(out, public(u))
	}
	return out
}

// private is the full record shown to its owner. Pending confirmation
// codes are hidden.
func private(u domain.User) domain.User {
	if len(u.Emails) > 0 {
		emails := make(map[string]domain.Confirmation, len(u.Emails))
		for email, c := range u.Emails {
			emails[email] = domain.Confirmation{Confirmed: c.Confirmed}
		}
		u.Emails = emails
	}
	return u
}

func listOf[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
