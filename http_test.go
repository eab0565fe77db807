package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "plain error", err: errors.New("boom"), want: http.StatusInternalServerError},
		{name: "invalid credentials", err: auth.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "token reuse", err: auth.ErrTokenReuse, want: http.StatusForbidden},
		{name: "account pending", err: auth.ErrAccountPending, want: http.StatusForbidden},
		{name: "not found", err: auth.ErrNotFound, want: http.StatusNotFound},
		{name: "duplicate email", err: auth.ErrDuplicateEmail, want: http.StatusConflict},
		{name: "token already used", err: auth.ErrTokenAlreadyUsed, want: http.StatusGone},
		{name: "rate limited", err: auth.ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "validation", err: auth.ErrValidation, want: http.StatusBadRequest},
		{
			name: "category only",
			err:  goerrors.New("nope", goerrors.CategoryAuthz),
			want: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.HTTPStatus(tt.err))
		})
	}
}

func captureEnvelope(ctx *router.MockContext, status int, out *auth.Envelope) {
	ctx.On("JSON", status, mock.Anything).Run(func(args mock.Arguments) {
		*out = args.Get(1).(auth.Envelope)
	}).Return(nil).Once()
}

func TestRouteAuthenticatorErrorHandler(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := auth.NewHTTPAuthenticator(nil, auth.WithRouteClock(func() time.Time { return fixed }))

	t.Run("client error keeps code and details", func(t *testing.T) {
		ctx := router.NewMockContext()
		var body auth.Envelope
		captureEnvelope(ctx, http.StatusConflict, &body)

		err := auth.NewError(auth.ErrDuplicateEmail, map[string]any{"email": "ada@example.com"})
		require.NoError(t, guard.ErrorHandler(ctx, err))

		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, auth.TextCodeDuplicateEmail, body.Error.Code)
		assert.Equal(t, map[string]any{"email": "ada@example.com"}, body.Error.Details)
		assert.Equal(t, "2026-03-01T12:00:00Z", body.Timestamp)
		ctx.AssertExpectations(t)
	})

	t.Run("validation error lists fields", func(t *testing.T) {
		ctx := router.NewMockContext()
		var body auth.Envelope
		captureEnvelope(ctx, http.StatusBadRequest, &body)

		err := auth.LoginRequest{Email: "not-an-email"}.Validate()
		require.Error(t, err)
		require.NoError(t, guard.ErrorHandler(ctx, err))

		assert.Equal(t, auth.TextCodeValidation, body.Error.Code)
		assert.NotNil(t, body.Error.Details)
	})

	t.Run("server error is masked", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("OriginalURL").Return("/api/v1/auth/me").Maybe()
		var body auth.Envelope
		captureEnvelope(ctx, http.StatusInternalServerError, &body)

		require.NoError(t, guard.ErrorHandler(ctx, errors.New("database exploded")))

		assert.Equal(t, auth.TextCodeInternal, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "database")
		assert.Nil(t, body.Error.Details)
	})
}

func TestRespondData(t *testing.T) {
	ctx := router.NewMockContext()
	var body auth.Envelope
	captureEnvelope(ctx, http.StatusCreated, &body)

	require.NoError(t, auth.RespondData(ctx, http.StatusCreated, map[string]string{"id": "1"}, "created"))
	assert.True(t, body.Success)
	assert.Equal(t, "created", body.Message)
	assert.Nil(t, body.Error)
}

func TestRouteAuthenticatorPrincipal(t *testing.T) {
	guard := auth.NewHTTPAuthenticator(nil)
	companyID := uuid.New()
	userID := uuid.New()

	t.Run("from locals", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.LocalsMock[guard.ContextKey()] = &auth.JWTClaims{
			UID:      userID.String(),
			UserRole: string(auth.RoleCompanyManager),
			Company:  companyID.String(),
		}

		principal, err := guard.Principal(ctx)
		require.NoError(t, err)
		assert.Equal(t, userID, principal.ID)
		assert.True(t, principal.Is(auth.RoleCompanyManager))
		assert.True(t, principal.InCompany(companyID))
		assert.False(t, principal.InCompany(uuid.New()))
	})

	t.Run("missing claims", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("Context").Return(context.Background())

		_, err := guard.Principal(ctx)
		assert.Equal(t, auth.TextCodeUnauthenticated, textCode(t, err))
	})
}

func TestPrincipalFromClaims(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name   string
		claims auth.AuthClaims
		code   string
	}{
		{name: "nil", claims: nil, code: auth.TextCodeUnauthenticated},
		{name: "bad user id", claims: &auth.JWTClaims{UID: "nope", UserRole: string(auth.RoleTeamMember)}, code: auth.TextCodeTokenMalformed},
		{name: "unknown role", claims: &auth.JWTClaims{UID: id, UserRole: "owner"}, code: auth.TextCodeTokenMalformed},
		{name: "bad company", claims: &auth.JWTClaims{UID: id, UserRole: string(auth.RoleTeamMember), Company: "acme"}, code: auth.TextCodeTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.PrincipalFromClaims(tt.claims)
			assert.Equal(t, tt.code, textCode(t, err))
		})
	}

	admin, err := auth.PrincipalFromClaims(&auth.JWTClaims{UID: id, UserRole: string(auth.RoleSystemAdmin)})
	require.NoError(t, err)
	assert.Nil(t, admin.CompanyID)
	assert.True(t, admin.AtLeast(auth.RoleCompanyManager))
	assert.True(t, admin.InCompany(uuid.New()), "admins reach every tenant")
}
