package migrations

import (
	"context"
	"fmt"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/activitymap"
	"github.com/goliatone/go-tenant-auth/workspace"
	"github.com/uptrace/bun"
)

// Models returns every table of the service in creation order
func Models() []any {
	models := auth.Models()
	models = append(models, (*activitymap.ActivityRecord)(nil))
	return append(models, workspace.Models()...)
}

// CreateSchema creates the tables that do not exist yet
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropSchema drops every table in reverse creation order
func DropSchema(ctx context.Context, db bun.IDB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", models[i], err)
		}
	}
	return nil
}

type index struct {
	name    string
	model   any
	columns []string
}

var indexes = []index{
	{"idx_users_company_status", (*auth.User)(nil), []string{"company_id", "status"}},
	{"idx_refresh_tokens_family", (*auth.RefreshToken)(nil), []string{"token_family"}},
	{"idx_refresh_tokens_user", (*auth.RefreshToken)(nil), []string{"user_id"}},
	{"idx_token_blacklist_expires", (*auth.TokenBlacklist)(nil), []string{"expires_at"}},
	{"idx_activity_company", (*activitymap.ActivityRecord)(nil), []string{"company_id", "occurred_at"}},
	{"idx_activity_family", (*activitymap.ActivityRecord)(nil), []string{"token_family"}},
	{"idx_projects_company", (*workspace.Project)(nil), []string{"company_id", "status"}},
	{"idx_tasks_project", (*workspace.Task)(nil), []string{"project_id", "status"}},
	{"idx_tasks_assignee", (*workspace.Task)(nil), []string{"assignee_id"}},
}

// CreateIndexes adds the lookup indexes used by the repositories
func CreateIndexes(ctx context.Context, db bun.IDB) error {
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
