package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

func withCache(e *env, cache auth.BlacklistCache) auth.RepositoryManager {
	return auth.NewRepositoryManager(e.db, auth.WithManagerBlacklistOptions(auth.WithBlacklistCache(cache)))
}

func TestBlacklistCacheWrittenAfterCommit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	pair, err := e.tokens().Issue(ctx, user)
	require.NoError(t, err)

	claims, err := e.tokens().ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)

	cache := new(MockBlacklistCache)
	cache.On("Add", mock.Anything, claims.TokenID(), mock.AnythingOfType("time.Duration")).Return(nil).Once()
	cache.On("Contains", mock.Anything, claims.TokenID()).Return(true, nil)

	tokens := auth.NewTokenService(withCache(e, cache), e.cfg)
	require.NoError(t, tokens.Revoke(ctx, pair.AccessToken, auth.RevokeReasonLogout))

	_, err = tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.Equal(t, auth.TextCodeTokenRevoked, textCode(t, err))

	cache.AssertExpectations(t)
}

func TestBlacklistCacheSkippedOnRollback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cache := new(MockBlacklistCache)
	cache.On("Contains", mock.Anything, "jti-rolled-back").Return(false, nil)

	repo := withCache(e, cache)
	boom := errors.New("boom")

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := repo.Blacklist().AddTx(ctx, tx, &auth.TokenBlacklist{
			TokenID:   "jti-rolled-back",
			Reason:    auth.RevokeReasonLogout,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	revoked, err := repo.Blacklist().IsRevoked(ctx, "jti-rolled-back")
	require.NoError(t, err)
	assert.False(t, revoked)

	cache.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
}

func TestBlacklistCacheSkipsNilAndExpired(t *testing.T) {
	e := newEnv(t)
	cache := new(MockBlacklistCache)

	repo := withCache(e, cache)
	repo.Blacklist().Cache(context.Background(),
		nil,
		&auth.TokenBlacklist{TokenID: "old", ExpiresAt: time.Now().UTC().Add(-time.Minute)},
	)

	cache.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
}
