package auth

import "context"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Identity is the authenticated caller. It is built once per request by
// Authenticate and never changed afterwards.
type Identity struct {
	CustomerID int64
	Name       string
	Role       Role
	SessionID  string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the caller, or false for anonymous requests.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Authorize is the owner-or-admin rule used for every per-reservation action.
func Authorize(caller Identity, ownerID int64) bool {
	if caller.IsAdmin() {
		return true
	}
	return caller.Role == RoleCustomer && caller.CustomerID != 0 && caller.CustomerID == ownerID
}
