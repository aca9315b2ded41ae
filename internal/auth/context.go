package auth

import (
	"context"
	"strings"
)

// Principal is the authenticated identity bound to a single request. It is
// created by the request authenticator, consumed by access checks and domain
// handlers, and discarded with the request context.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// HasRole reports whether the principal carries the named role.
func (p Principal) HasRole(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// PrincipalFromUser projects a stored user into a request principal.
func PrincipalFromUser(u *User) Principal {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    roles,
	}
}

type principalContextKey struct{}

// ContextWithPrincipal binds the authenticated principal to the context.
// Exactly one identity may be bound per request: if an identity is already
// present the context is returned unchanged.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	if _, ok := PrincipalFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal, if bound.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
