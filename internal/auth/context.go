// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity extracted from a request
type AuthContext struct {
	Subject string
	Role    Role
}

// CanOperate returns true if the holder may change turtle state
func (a *AuthContext) CanOperate() bool {
	return a != nil && a.Role == RoleOperator
}

// Actor names the holder in ledger events
func (a *AuthContext) Actor() string {
	if a == nil || a.Subject == "" {
		return "anonymous"
	}
	return a.Subject
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}
