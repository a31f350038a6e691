package dirauth

import (
	"context"

	"github.com/goliatone/go-router"
)

// PrincipalLocalsKey is the router locals key the gate middleware stores the
// admitted principal under.
const PrincipalLocalsKey = "principal"

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipalContext sets the Principal in the given context
func WithPrincipalContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// GetRouterPrincipal extracts the Principal from the router context
func GetRouterPrincipal(ctx router.Context, key string) (*Principal, bool) {
	if key == "" {
		key = PrincipalLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	p, ok := raw.(*Principal)
	return p, ok && p != nil
}
