package auth

import (
	"context"
	"slices"
)

// Principal is the authenticated identity of one request. It is built once
// from a validated access token and never persisted.
type Principal struct {
	UserID string
	Email  string
	roles  map[string]struct{}
}

func NewPrincipal(userID, email string, roles []string) Principal {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Principal{UserID: userID, Email: email, roles: set}
}

func (p Principal) HasRole(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Roles returns the role names sorted.
func (p Principal) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
