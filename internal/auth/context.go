// ABOUTME: Request identity propagation through context.Context
// ABOUTME: Provides WithIdentity/FromContext for handlers to read the caller

package auth

import (
	"context"
)

// Marketplace roles. Every authenticated user carries exactly one.
const (
	RoleRequester = "requester"
	RoleProvider  = "provider"
)

// Identity holds the authenticated caller extracted from a request.
// It is populated by the HTTP middleware and retrieved in handlers.
type Identity struct {
	UserID string // stable user identifier ("sub" claim)
	Role   string // "requester" | "provider"
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
