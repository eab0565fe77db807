package workspace

import (
	"context"
	"database/sql"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/uptrace/bun"
)

// Manager groups the workspace repositories behind one transaction runner
type Manager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Projects() Projects
	ProjectMembers() ProjectMembers
	Tasks() Tasks
}

type manager struct {
	db       *bun.DB
	retry    auth.RetryOptions
	projects Projects
	members  ProjectMembers
	tasks    Tasks
}

// NewManager creates the workspace repositories on db
func NewManager(db *bun.DB) Manager {
	return &manager{
		db:       db,
		retry:    auth.DefaultRetryOptions(),
		projects: NewProjectsRepository(db),
		members:  NewProjectMembersRepository(),
		tasks:    NewTasksRepository(db),
	}
}

// RunInTx retries f on transient database errors
func (m *manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return auth.WithRetry(ctx, m.retry, func(ctx context.Context) error {
		return m.db.RunInTx(ctx, opts, f)
	})
}

func (m *manager) Projects() Projects {
	return m.projects
}

func (m *manager) ProjectMembers() ProjectMembers {
	return m.members
}

func (m *manager) Tasks() Tasks {
	return m.tasks
}
