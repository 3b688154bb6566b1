// Package authn carries the authenticated caller identity through request
// context. Authentication itself is an external collaborator; this engine
// only consumes the resulting user id and role.
package authn

import "context"

// Role is the caller's role in the platform.
type Role string

const (
	// RolePatient is an ordinary app user.
	RolePatient Role = "patient"
	// RolePT is the physical therapist, the elevated role for appointment
	// lifecycle actions.
	RolePT Role = "pt"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// Elevated reports whether the identity holds the privileged role.
func (id Identity) Elevated() bool {
	return id.Role == RolePT
}

type ctxKey string

const identityKey ctxKey = "movewell.identity"

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the caller identity if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	val := ctx.Value(identityKey)
	if val == nil {
		return Identity{}, false
	}
	id, ok := val.(Identity)
	return id, ok && id.UserID != ""
}
