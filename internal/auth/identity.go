package auth

import "context"

// Role is the closed set of account roles.
type Role string

// Stored role names match the users.role CHECK constraint.
const (
	RoleAdministrator Role = "Administrador"
	RoleCustomer      Role = "Cliente"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdministrator || r == RoleCustomer
}

// Identity is the authenticated bearer of a session token.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	JTI   string `json:"jti"`
}

// IsAdmin reports whether the identity carries the administrator role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdministrator }

// CanActOn reports whether the identity may modify the account with the given id.
func (i Identity) CanActOn(userID int64) bool {
	return i.IsAdmin() || i.ID == userID
}

type ctxKey struct{}

// ContextWithIdentity stores the authenticated identity in ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFromContext returns the identity stored by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
