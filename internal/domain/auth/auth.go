package auth

import "context"

// Role names the permission level attached to an API key.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated identity a request acts as. It is resolved by
// the auth middleware and carried in the request context.
type Actor struct {
	UserID string
	Admin  bool
}

// APIKeyInfo holds the identity data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Role    Role
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type actorKey struct{}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the actor resolved by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
