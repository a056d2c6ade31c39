package deviceauth

import "context"

type contextKey int

const identityContextKey contextKey = 0

// HTTPIdentity is what an authenticated API request resolves to.
type HTTPIdentity struct {
	UserID string
}

// WithIdentity attaches an already-resolved identity to ctx. Exported
// so other packages' handler tests can inject an identity without
// constructing a real bearer token.
func WithIdentity(ctx context.Context, id HTTPIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity HTTPMiddleware attached to
// the request, if any.
func IdentityFromContext(ctx context.Context) (HTTPIdentity, bool) {
	id, ok := ctx.Value(identityContextKey).(HTTPIdentity)
	return id, ok
}
