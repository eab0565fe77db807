package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestSeedAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	seed := auth.AdminSeed{Email: "Root@Example.com", Password: testPassword}

	created, err := auth.SeedAdmin(ctx, e.repo, seed, nil)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = auth.SeedAdmin(ctx, e.repo, seed, nil)
	require.NoError(t, err)
	assert.False(t, created, "seeding is idempotent")

	admin, err := e.repo.Users().GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleSystemAdmin, admin.Role)
	assert.Equal(t, auth.StatusActive, admin.Status)
	assert.Nil(t, admin.CompanyID)
	assert.Equal(t, "System Administrator", admin.FullName())

	result, err := auth.NewAuthenticator(e.repo, e.tokens(), e.cfg).Login(ctx, "root@example.com", testPassword)
	require.NoError(t, err)
	assert.Empty(t, result.User.CompanyID)

	t.Run("invalid seed", func(t *testing.T) {
		_, err := auth.SeedAdmin(ctx, e.repo, auth.AdminSeed{Email: "root", Password: "weak"}, nil)
		assert.Equal(t, auth.TextCodeValidation, textCode(t, err))
	})
}
