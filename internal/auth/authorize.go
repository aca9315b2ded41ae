package auth

import "context"

// Authorize reports whether the context carries an identity holding at least
// one of the required roles. An empty requirement passes for any bound
// identity; an unbound context fails any non-empty requirement.
func Authorize(ctx context.Context, required ...string) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, role := range required {
		if principal.HasRole(role) {
			return true
		}
	}
	return false
}

// AuthorizeOwner passes when Authorize does, or when the acting principal's
// username matches the resource's recorded creator.
func AuthorizeOwner(ctx context.Context, ownerUsername string, required ...string) bool {
	if Authorize(ctx, required...) {
		return true
	}
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return ownerUsername != "" && principal.Username == ownerUsername
}

// AuthorizeSelf passes when Authorize does, or when the acting principal's id
// matches the target user id.
func AuthorizeSelf(ctx context.Context, userID string, required ...string) bool {
	if Authorize(ctx, required...) {
		return true
	}
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return userID != "" && principal.UserID == userID
}
