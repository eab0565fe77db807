package auth

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// DefaultContextKey is the router Locals key the JWT middleware stores claims under
const DefaultContextKey = "user"

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// Principal is the authenticated caller as seen by services
type Principal struct {
	ID        uuid.UUID
	Role      UserRole
	CompanyID *uuid.UUID
	TokenID   string
}

// PrincipalFromClaims builds a Principal from validated claims
func PrincipalFromClaims(claims AuthClaims) (Principal, error) {
	if claims == nil {
		return Principal{}, ErrUnauthenticated
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return Principal{}, ErrTokenMalformed
	}

	role, ok := ParseRole(claims.Role())
	if !ok {
		return Principal{}, ErrTokenMalformed
	}

	p := Principal{ID: id, Role: role, TokenID: claims.TokenID()}

	if raw := claims.CompanyID(); raw != "" {
		companyID, err := uuid.Parse(raw)
		if err != nil {
			return Principal{}, ErrTokenMalformed
		}
		p.CompanyID = &companyID
	}

	return p, nil
}

// Is reports an exact role match
func (p Principal) Is(role UserRole) bool {
	return p.Role == role
}

// AtLeast reports whether the role meets minRole in the hierarchy
func (p Principal) AtLeast(minRole UserRole) bool {
	return p.Role.IsAtLeast(minRole)
}

// InCompany is true for admins and for members of companyID
func (p Principal) InCompany(companyID uuid.UUID) bool {
	if p.Is(RoleSystemAdmin) {
		return true
	}
	return p.CompanyID != nil && *p.CompanyID == companyID
}

// Ref returns the ActorRef recorded in audit events
func (p Principal) Ref() ActorRef {
	if p.ID == uuid.Nil {
		return SystemActor
	}
	return ActorRef{ID: p.ID.String(), Type: string(p.Role)}
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// PrincipalFromRouter resolves the caller of a protected route
func PrincipalFromRouter(ctx router.Context, key string) (Principal, error) {
	claims, ok := GetRouterClaims(ctx, key)
	if !ok {
		if claims, ok = GetClaims(ctx.Context()); !ok {
			return Principal{}, ErrUnauthenticated
		}
	}
	return PrincipalFromClaims(claims)
}
