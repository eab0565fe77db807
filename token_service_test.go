package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

func TestTokenServiceIssueAndValidate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	company := e.insertCompany(t, "Acme", auth.StatusActive)
	user := e.insertUser(t, "manager@acme.test", auth.RoleCompanyManager, &company.ID, auth.StatusActive)

	tokens := e.tokens()
	pair, err := tokens.Issue(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(15*60), pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := tokens.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.Equal(t, string(auth.RoleCompanyManager), claims.Role())
	assert.Equal(t, company.ID.String(), claims.CompanyID())
	assert.NotEmpty(t, claims.TokenID())
	assert.True(t, claims.IsAtLeast(string(auth.RoleTeamMember)))

	principal, err := auth.PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.ID)
	require.NotNil(t, principal.CompanyID)
	assert.Equal(t, company.ID, *principal.CompanyID)
}

func TestTokenServiceRejectsBadAccessTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	past := func() time.Time { return time.Now().UTC().Add(-time.Hour) }
	expired, err := e.tokens(auth.WithTokenServiceClock(past)).Issue(ctx, user)
	require.NoError(t, err)

	other := newTestConfig()
	other.signingKey = "another-signing-key-that-is-long-enough"
	foreign, err := auth.NewTokenService(e.repo, other).Issue(ctx, user)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{name: "empty", token: "", code: auth.TextCodeTokenMalformed},
		{name: "garbage", token: "not.a.jwt", code: auth.TextCodeTokenMalformed},
		{name: "expired", token: expired.AccessToken, code: auth.TextCodeTokenExpired},
		{name: "wrong signature", token: foreign.AccessToken, code: auth.TextCodeTokenMalformed},
	}

	tokens := e.tokens()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ValidateAccess(ctx, tt.token)
			assert.Equal(t, tt.code, textCode(t, err))
		})
	}
}

func TestTokenServiceRefreshRotates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	tokens := e.tokens()
	first, err := tokens.Issue(ctx, user)
	require.NoError(t, err)

	second, err := tokens.Refresh(ctx, first.RefreshToken, first.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = tokens.ValidateAccess(ctx, first.AccessToken)
	assert.Equal(t, auth.TextCodeTokenRevoked, textCode(t, err), "previous access token is blacklisted on refresh")

	_, err = tokens.ValidateAccess(ctx, second.AccessToken)
	require.NoError(t, err)

	third, err := tokens.Refresh(ctx, second.RefreshToken, "")
	require.NoError(t, err)
	assert.NotEmpty(t, third.RefreshToken)
}

func TestTokenServiceRefreshReuseRevokesFamily(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	tokens := e.tokens(auth.WithTokenServiceActivitySink(e.sink()))
	first, err := tokens.Issue(ctx, user)
	require.NoError(t, err)

	second, err := tokens.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	_, err = tokens.Refresh(ctx, first.RefreshToken, "")
	assert.Equal(t, auth.TextCodeTokenReuse, textCode(t, err))

	_, err = tokens.Refresh(ctx, second.RefreshToken, "")
	assert.Equal(t, auth.TextCodeInvalidToken, textCode(t, err), "the whole family is revoked")

	assert.Contains(t, e.eventTypes(), auth.ActivityEventTokenReuse)
}

// staleRefreshTokens returns refresh tokens as they looked before any
// rotation, the view a concurrent request has when it read the row first.
type staleRefreshTokens struct {
	auth.RefreshTokens
}

func (s staleRefreshTokens) FindByHashTx(ctx context.Context, tx bun.IDB, hash string) (*auth.RefreshToken, error) {
	record, err := s.RefreshTokens.FindByHashTx(ctx, tx, hash)
	if err != nil {
		return nil, err
	}
	record.RevokedAt = nil
	record.RevokedReason = ""
	record.ReplacedBy = nil
	return record, nil
}

type staleRepo struct {
	auth.RepositoryManager
}

func (r staleRepo) RefreshTokens() auth.RefreshTokens {
	return staleRefreshTokens{RefreshTokens: r.RepositoryManager.RefreshTokens()}
}

func TestTokenServiceRefreshConcurrentRotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	tokens := e.tokens()
	first, err := tokens.Issue(ctx, user)
	require.NoError(t, err)

	second, err := tokens.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	late := auth.NewTokenService(staleRepo{RepositoryManager: e.repo}, e.cfg)
	_, err = late.Refresh(ctx, first.RefreshToken, "")
	assert.Equal(t, auth.TextCodeTokenReuse, textCode(t, err), "losing the rotation race counts as reuse")

	_, err = tokens.Refresh(ctx, second.RefreshToken, "")
	assert.Equal(t, auth.TextCodeInvalidToken, textCode(t, err), "the family is revoked")

	err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := e.repo.RefreshTokens().FindByHashTx(ctx, tx, auth.HashToken(second.RefreshToken))
		require.NoError(t, err)
		assert.Equal(t, auth.RevokeReasonReuse, record.RevokedReason)
		return nil
	})
	require.NoError(t, err)
}

func TestRefreshTokensRevokeReportsChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	pair, err := e.tokens().Issue(ctx, user)
	require.NoError(t, err)

	err = e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := e.repo.RefreshTokens().FindByHashTx(ctx, tx, auth.HashToken(pair.RefreshToken))
		require.NoError(t, err)

		revoked, err := e.repo.RefreshTokens().RevokeTx(ctx, tx, record.ID, auth.RevokeReasonRotated, nil)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = e.repo.RefreshTokens().RevokeTx(ctx, tx, record.ID, auth.RevokeReasonRotated, nil)
		require.NoError(t, err)
		assert.False(t, revoked, "a second revoke changes nothing")
		return nil
	})
	require.NoError(t, err)
}

func TestTokenServiceRefreshFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	company := e.insertCompany(t, "Acme", auth.StatusActive)
	member := e.insertUser(t, "alice@acme.test", auth.RoleTeamMember, &company.ID, auth.StatusActive)

	tokens := e.tokens()

	t.Run("unknown token", func(t *testing.T) {
		_, err := tokens.Refresh(ctx, "does-not-exist", "")
		assert.Equal(t, auth.TextCodeInvalidToken, textCode(t, err))
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := tokens.Refresh(ctx, "", "")
		assert.Equal(t, auth.TextCodeInvalidToken, textCode(t, err))
	})

	t.Run("expired token", func(t *testing.T) {
		past := func() time.Time { return time.Now().UTC().Add(-30 * 24 * time.Hour) }
		old, err := e.tokens(auth.WithTokenServiceClock(past)).Issue(ctx, member)
		require.NoError(t, err)

		_, err = tokens.Refresh(ctx, old.RefreshToken, "")
		assert.Equal(t, auth.TextCodeInvalidToken, textCode(t, err))
	})

	t.Run("deactivated account", func(t *testing.T) {
		pair, err := tokens.Issue(ctx, member)
		require.NoError(t, err)

		_, err = e.db.NewUpdate().Model((*auth.User)(nil)).
			Set("status = ?", auth.StatusInactive).
			Where("id = ?", member.ID).
			Exec(ctx)
		require.NoError(t, err)

		_, err = tokens.Refresh(ctx, pair.RefreshToken, "")
		assert.Equal(t, auth.TextCodeAccountInactive, textCode(t, err))
	})
}

func TestTokenServiceRevokeAndLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)
	other := e.insertUser(t, "other@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	tokens := e.tokens()

	t.Run("revoke is idempotent", func(t *testing.T) {
		pair, err := tokens.Issue(ctx, user)
		require.NoError(t, err)

		require.NoError(t, tokens.Revoke(ctx, pair.AccessToken, "test"))
		require.NoError(t, tokens.Revoke(ctx, pair.AccessToken, "test"))

		_, err = tokens.ValidateAccess(ctx, pair.AccessToken)
		assert.Equal(t, auth.TextCodeTokenRevoked, textCode(t, err))
	})

	t.Run("logout revokes refresh tokens", func(t *testing.T) {
		pair, err := tokens.Issue(ctx, user)
		require.NoError(t, err)

		require.NoError(t, tokens.Logout(ctx, user.ID, pair.AccessToken))

		_, err = tokens.ValidateAccess(ctx, pair.AccessToken)
		assert.Equal(t, auth.TextCodeTokenRevoked, textCode(t, err))

		_, err = tokens.Refresh(ctx, pair.RefreshToken, "")
		assert.Equal(t, auth.TextCodeInvalidToken, textCode(t, err))
	})

	t.Run("logout with a foreign access token", func(t *testing.T) {
		pair, err := tokens.Issue(ctx, other)
		require.NoError(t, err)

		err = tokens.Logout(ctx, user.ID, pair.AccessToken)
		assert.Equal(t, auth.TextCodeForbidden, textCode(t, err))

		_, err = tokens.ValidateAccess(ctx, pair.AccessToken)
		assert.NoError(t, err)
	})
}

func TestTokenServiceCleanupExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)

	past := func() time.Time { return time.Now().UTC().Add(-60 * 24 * time.Hour) }
	_, err := e.tokens(auth.WithTokenServiceClock(past)).Issue(ctx, user)
	require.NoError(t, err)

	tokens := e.tokens()
	live, err := tokens.Issue(ctx, user)
	require.NoError(t, err)

	sweeper := auth.NewSweeper(tokens, time.Hour, nil)
	report := sweeper.Sweep(ctx)
	assert.Equal(t, int64(1), report.RefreshTokens)
	assert.Equal(t, int64(1), report.Total())

	_, err = tokens.Refresh(ctx, live.RefreshToken, "")
	assert.NoError(t, err, "live tokens survive the sweep")
}

func TestSweeperStopsOnCancel(t *testing.T) {
	e := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := auth.NewSweeper(e.tokens(), 10*time.Millisecond, nil)
	sweeper.Start(ctx)
	cancel()

	select {
	case <-sweeper.Done():
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
