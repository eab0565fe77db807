package auth_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/migrations"
)

const testPassword = "Secret123"

func TestMain(m *testing.M) {
	auth.BcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testConfig struct {
	signingKey  string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	resetTTL    time.Duration
	maxAttempts int
	lockWindow  time.Duration
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:  "test-signing-key-that-is-long-enough-1234",
		accessTTL:   15 * time.Minute,
		refreshTTL:  7 * 24 * time.Hour,
		resetTTL:    time.Hour,
		maxAttempts: 3,
		lockWindow:  15 * time.Minute,
	}
}

func (c *testConfig) GetSigningKey() string              { return c.signingKey }
func (c *testConfig) GetIssuer() string                  { return "tenant-auth-test" }
func (c *testConfig) GetAudience() []string              { return []string{"tenant-api"} }
func (c *testConfig) GetAccessTokenTTL() time.Duration   { return c.accessTTL }
func (c *testConfig) GetRefreshTokenTTL() time.Duration  { return c.refreshTTL }
func (c *testConfig) GetResetTokenTTL() time.Duration    { return c.resetTTL }
func (c *testConfig) GetLoginMaxAttempts() int           { return c.maxAttempts }
func (c *testConfig) GetLoginLockWindow() time.Duration  { return c.lockWindow }

type env struct {
	db     *bun.DB
	repo   auth.RepositoryManager
	cfg    *testConfig
	events []auth.ActivityEvent
}

func newEnv(t *testing.T) *env {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", "file::memory:?cache=private")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.CreateSchema(context.Background(), db))

	return &env{
		db:   db,
		repo: auth.NewRepositoryManager(db),
		cfg:  newTestConfig(),
	}
}

func (e *env) sink() auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		e.events = append(e.events, event)
		return nil
	})
}

func (e *env) eventTypes() []auth.ActivityEventType {
	out := make([]auth.ActivityEventType, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.EventType)
	}
	return out
}

func (e *env) tokens(opts ...auth.TokenServiceOption) *auth.TokenServiceImpl {
	return auth.NewTokenService(e.repo, e.cfg, opts...)
}

func (e *env) insertCompany(t *testing.T, name string, status auth.Status) *auth.Company {
	t.Helper()
	company := &auth.Company{
		ID:     uuid.New(),
		Name:   name,
		Status: status,
	}
	_, err := e.db.NewInsert().Model(company).Exec(context.Background())
	require.NoError(t, err)
	return company
}

func (e *env) insertUser(t *testing.T, email string, role auth.UserRole, companyID *uuid.UUID, status auth.Status) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)

	user := &auth.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Status:       status,
		CompanyID:    companyID,
	}
	_, err = e.db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func (e *env) reloadUser(t *testing.T, id uuid.UUID) *auth.User {
	t.Helper()
	user, err := e.repo.Users().GetByUUID(context.Background(), id)
	require.NoError(t, err)
	return user
}

func (e *env) reloadCompany(t *testing.T, id uuid.UUID) *auth.Company {
	t.Helper()
	company := &auth.Company{}
	err := e.db.NewSelect().Model(company).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return company
}

func principalOf(user *auth.User) auth.Principal {
	return auth.Principal{ID: user.ID, Role: user.Role, CompanyID: user.CompanyID}
}

func textCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a rich error, got %T: %v", err, err)
	return richErr.TextCode
}
