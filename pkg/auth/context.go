// Package auth carries the caller identity through request contexts.
// Tenant and user ids are opaque strings supplied by an upstream gateway;
// nothing here validates tokens.
package auth

import (
	"context"
	"fmt"
)

type contextKey string

// IdentityKey is the context key for the caller Identity.
const IdentityKey contextKey = "identity"

// Identity is the authenticated caller as asserted by the gateway.
type Identity struct {
	TenantID string
	UserID   string
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity extracts the caller identity. Returns false if none is present.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	return id, ok
}

// GetUserIDFromContext returns the caller's user id, or "" when unauthenticated.
func GetUserIDFromContext(ctx context.Context) string {
	id, _ := GetIdentity(ctx)
	return id.UserID
}

// GetTenantIDFromContext returns the caller's tenant id, or "" when unauthenticated.
func GetTenantIDFromContext(ctx context.Context) string {
	id, _ := GetIdentity(ctx)
	return id.TenantID
}

// RequireIdentity returns the caller identity or an error if either id is missing.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := GetIdentity(ctx)
	if !ok || id.TenantID == "" || id.UserID == "" {
		return Identity{}, fmt.Errorf("identity not found in context")
	}
	return id, nil
}
