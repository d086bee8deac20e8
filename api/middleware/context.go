package middleware

import (
	"context"

	"github.com/accra-labs/storefront-backend/pkg/auth"
)

type contextKey string

const ctxIdentity contextKey = "identity"

// WithIdentity injects the resolved requester into the context.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxIdentity, identity)
}

// IdentityFromContext returns the requester seeded by the Auth middleware.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	if ctx == nil {
		return auth.Identity{}, false
	}
	identity, ok := ctx.Value(ctxIdentity).(auth.Identity)
	return identity, ok
}

// UserIDFromContext returns the requester's user id as a string, or "".
func UserIDFromContext(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.UserID.String()
}
