package auth

import (
	"context"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	"github.com/goliatone/go-tenant-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// JWTValidator adapts a TokenValidator to the middleware contract
func JWTValidator(v TokenValidator) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(ctx context.Context, token string) (jwtware.AuthClaims, error) {
		if v == nil {
			return nil, ErrTokenMalformed
		}
		claims, err := v.Validate(ctx, token)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}

// ContextEnricherAdapter stores the claims in the standard context so
// services can read them with GetClaims.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// ActiveAccountListener rejects tokens whose user was deactivated after
// the token was issued.
func ActiveAccountListener(users Users) ValidationListener {
	return func(ctx router.Context, claims jwtware.AuthClaims) error {
		id, err := uuid.Parse(claims.UserID())
		if err != nil {
			return ErrTokenMalformed
		}

		user, err := users.GetByUUID(ctx.Context(), id)
		if err != nil {
			if HasTextCode(err, TextCodeNotFound) {
				return ErrUnauthenticated
			}
			return asRichError(err, "failed to load token owner")
		}

		switch user.Status {
		case StatusActive:
			return nil
		case StatusPending:
			return ErrAccountPending
		case StatusRejected:
			return ErrAccountRejected
		default:
			return ErrAccountInactive
		}
	}
}
