package shared

import "context"

// Principal is the acting user resolved by the identity layer.
type Principal struct {
	UserID           int64  `json:"user_id"`
	Username         string `json:"username"`
	CashierAuthority bool   `json:"cashier_authority"`
}

// IsZero reports whether no principal was resolved.
func (p Principal) IsZero() bool {
	return p.UserID == 0
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && !p.IsZero()
}
