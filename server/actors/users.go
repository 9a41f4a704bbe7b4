package actors

import (
	"context"
	"strings"
)

// User is an author account on the hosting site.
type User struct {
	ID             int64
	Username       string // stored webfinger identifier
	Login          string
	Nicename       string // url slug
	DisplayName    string
	Summary        string
	Type           string
	Icon           string
	PrivateKeyFile string
}

// Users is the hosting site's account store. Lookups return nil, nil when nothing matches.
type Users interface {
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByIdentifier(ctx context.Context, identifier string) (*User, error)
	SearchUsers(ctx context.Context, q string) ([]User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// StaticUsers serves a fixed list, typically from configuration.
type StaticUsers []User

func (s StaticUsers) UserByID(_ context.Context, id int64) (*User, error) {
	for i := range s {
		if s[i].ID == id {
			u := s[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (s StaticUsers) UserByIdentifier(_ context.Context, identifier string) (*User, error) {
	for i := range s {
		if s[i].Username == identifier {
			u := s[i]
			return &u, nil
		}
	}
	return nil, nil
}

// SearchUsers matches login or nicename ignoring case, with spaces treated as dashes.
func (s StaticUsers) SearchUsers(_ context.Context, q string) ([]User, error) {
	q = slug(q)
	var out []User
	for _, u := range s {
		if q != "" && (slug(u.Login) == q || slug(u.Nicename) == q || slug(u.Username) == q) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s StaticUsers) ListUsers(_ context.Context) ([]User, error) {
	return append([]User(nil), s...), nil
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}
