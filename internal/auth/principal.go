package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the identity derived from a verified token. It is built per
// request or connection and never persisted.
type Principal struct {
	UserID uuid.UUID
	Kind   string // KindAccess or KindRefresh
	Token  string // the verified bearer token
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// WithPrincipal returns a copy of ctx carrying principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
