package workspace_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/migrations"
	"github.com/goliatone/go-tenant-auth/workspace"
)

type fixture struct {
	db       *bun.DB
	accounts auth.RepositoryManager
	service  *workspace.Service
	events   *[]auth.ActivityEvent

	companyA uuid.UUID
	companyB uuid.UUID

	admin    auth.Principal
	managerA auth.Principal
	managerB auth.Principal
	alice    auth.Principal
	bob      auth.Principal
	pending  uuid.UUID
	outsider uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open("sqlite3", "file::memory:?cache=private")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.CreateSchema(ctx, db))

	f := &fixture{
		db:       db,
		accounts: auth.NewRepositoryManager(db),
		companyA: uuid.New(),
		companyB: uuid.New(),
	}

	f.insertCompany(t, f.companyA, "Acme")
	f.insertCompany(t, f.companyB, "Globex")

	f.admin = f.insertUser(t, "admin@example.com", auth.RoleSystemAdmin, nil, auth.StatusActive)
	f.managerA = f.insertUser(t, "manager@acme.test", auth.RoleCompanyManager, &f.companyA, auth.StatusActive)
	f.managerB = f.insertUser(t, "manager@globex.test", auth.RoleCompanyManager, &f.companyB, auth.StatusActive)
	f.alice = f.insertUser(t, "alice@acme.test", auth.RoleTeamMember, &f.companyA, auth.StatusActive)
	f.bob = f.insertUser(t, "bob@acme.test", auth.RoleTeamMember, &f.companyA, auth.StatusActive)
	f.pending = f.insertUser(t, "carol@acme.test", auth.RoleTeamMember, &f.companyA, auth.StatusPending).ID
	f.outsider = f.insertUser(t, "dave@globex.test", auth.RoleTeamMember, &f.companyB, auth.StatusActive).ID

	events := []auth.ActivityEvent{}
	f.events = &events
	sink := auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		events = append(events, event)
		return nil
	})

	f.service = workspace.NewService(
		workspace.NewManager(db),
		f.accounts,
		auth.NewApprovalService(f.accounts),
		workspace.WithActivitySink(sink),
	)
	return f
}

func (f *fixture) insertCompany(t *testing.T, id uuid.UUID, name string) {
	t.Helper()
	_, err := f.db.NewInsert().Model(&auth.Company{
		ID:     id,
		Name:   name,
		Status: auth.StatusActive,
	}).Exec(context.Background())
	require.NoError(t, err)
}

func (f *fixture) insertUser(t *testing.T, email string, role auth.UserRole, companyID *uuid.UUID, status auth.Status) auth.Principal {
	t.Helper()
	user := &auth.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     string(role),
		Role:         role,
		Status:       status,
		CompanyID:    companyID,
	}
	_, err := f.db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)

	return auth.Principal{ID: user.ID, Role: role, CompanyID: companyID}
}

func (f *fixture) createProject(t *testing.T, actor auth.Principal, name string, members ...uuid.UUID) *workspace.ProjectDetail {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	detail, err := f.service.CreateProject(context.Background(), actor, workspace.CreateProjectRequest{
		Name:      name,
		StartDate: start,
		EndDate:   start.AddDate(0, 3, 0),
		MemberIDs: members,
	})
	require.NoError(t, err)
	return detail
}

func ptr[T any](v T) *T {
	return &v
}
