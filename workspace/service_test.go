package workspace_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/workspace"
)

func TestCreateProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("manager allocates members", func(t *testing.T) {
		detail := f.createProject(t, f.managerA, "Website", f.alice.ID, f.bob.ID, f.alice.ID)

		assert.Equal(t, f.companyA, detail.CompanyID)
		assert.Equal(t, workspace.ProjectPlanning, detail.Status)
		assert.ElementsMatch(t, []uuid.UUID{f.alice.ID, f.bob.ID}, detail.MemberIDs)
		require.NotEmpty(t, *f.events)
		assert.Equal(t, workspace.ActivityProjectCreated, (*f.events)[len(*f.events)-1].EventType)
	})

	tests := []struct {
		name     string
		actor    auth.Principal
		req      workspace.CreateProjectRequest
		textCode string
	}{
		{
			name:     "team member is forbidden",
			actor:    f.alice,
			req:      workspace.CreateProjectRequest{Name: "x", StartDate: start, EndDate: start.AddDate(0, 1, 0)},
			textCode: auth.TextCodeForbidden,
		},
		{
			name:     "end date before start",
			actor:    f.managerA,
			req:      workspace.CreateProjectRequest{Name: "x", StartDate: start, EndDate: start.AddDate(0, 0, -1)},
			textCode: workspace.TextCodeInvalidDateRange,
		},
		{
			name:     "missing name",
			actor:    f.managerA,
			req:      workspace.CreateProjectRequest{StartDate: start, EndDate: start.AddDate(0, 1, 0)},
			textCode: auth.TextCodeValidation,
		},
		{
			name:  "pending member",
			actor: f.managerA,
			req: workspace.CreateProjectRequest{
				Name: "x", StartDate: start, EndDate: start.AddDate(0, 1, 0),
				MemberIDs: []uuid.UUID{f.pending},
			},
			textCode: workspace.TextCodeInvalidProjectMembers,
		},
		{
			name:  "member of another company",
			actor: f.managerA,
			req: workspace.CreateProjectRequest{
				Name: "x", StartDate: start, EndDate: start.AddDate(0, 1, 0),
				MemberIDs: []uuid.UUID{f.outsider},
			},
			textCode: workspace.TextCodeInvalidProjectMembers,
		},
		{
			name:     "admin must name the company",
			actor:    f.admin,
			req:      workspace.CreateProjectRequest{Name: "x", StartDate: start, EndDate: start.AddDate(0, 1, 0)},
			textCode: auth.TextCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateProject(ctx, tt.actor, tt.req)
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, tt.textCode), "got %v", err)
		})
	}

	t.Run("admin creates for a company", func(t *testing.T) {
		detail, err := f.service.CreateProject(ctx, f.admin, workspace.CreateProjectRequest{
			Name:      "Admin project",
			StartDate: start,
			EndDate:   start.AddDate(0, 1, 0),
			CompanyID: &f.companyB,
		})
		require.NoError(t, err)
		assert.Equal(t, f.companyB, detail.CompanyID)
	})
}

func TestListProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createProject(t, f.managerA, "Website redesign")
	f.createProject(t, f.managerA, "Mobile app")
	f.createProject(t, f.managerA, "Website backend")
	f.createProject(t, f.managerB, "Globex portal")

	t.Run("scoped to company", func(t *testing.T) {
		page, err := f.service.ListProjects(ctx, f.alice, workspace.ProjectQuery{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 3)
		assert.Equal(t, 3, page.Pagination.Total)
		assert.Equal(t, workspace.DefaultPageSize, page.Pagination.Limit)
	})

	t.Run("admin sees all companies", func(t *testing.T) {
		page, err := f.service.ListProjects(ctx, f.admin, workspace.ProjectQuery{})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Pagination.Total)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := f.service.ListProjects(ctx, f.managerA, workspace.ProjectQuery{Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, 2, page.Pagination.TotalPages)
	})

	t.Run("limit is capped", func(t *testing.T) {
		page, err := f.service.ListProjects(ctx, f.managerA, workspace.ProjectQuery{Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, workspace.MaxPageSize, page.Pagination.Limit)
	})

	t.Run("search", func(t *testing.T) {
		page, err := f.service.ListProjects(ctx, f.managerA, workspace.ProjectQuery{Search: "website"})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := f.service.ListProjects(ctx, f.managerA, workspace.ProjectQuery{Status: "bogus"})
		assert.True(t, auth.HasTextCode(err, auth.TextCodeValidation))
	})
}

func TestProjectIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project := f.createProject(t, f.managerA, "Private")

	_, err := f.service.GetProject(ctx, f.managerB, project.ID)
	assert.True(t, auth.HasTextCode(err, workspace.TextCodeProjectNotFound))

	err = f.service.DeleteProject(ctx, f.managerB, project.ID)
	assert.True(t, auth.HasTextCode(err, workspace.TextCodeProjectNotFound))

	detail, err := f.service.GetProject(ctx, f.admin, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, detail.ID)
}

func TestUpdateProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project := f.createProject(t, f.managerA, "Launch", f.alice.ID)

	task, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{
		Title:      "Copy",
		AssigneeID: &f.alice.ID,
	})
	require.NoError(t, err)

	t.Run("end date is checked against stored start", func(t *testing.T) {
		_, err := f.service.UpdateProject(ctx, f.managerA, project.ID, workspace.UpdateProjectRequest{
			EndDate: ptr(project.StartDate.AddDate(0, 0, -1)),
		})
		assert.True(t, auth.HasTextCode(err, workspace.TextCodeInvalidDateRange))
	})

	t.Run("fields and members", func(t *testing.T) {
		status := workspace.ProjectActive
		detail, err := f.service.UpdateProject(ctx, f.managerA, project.ID, workspace.UpdateProjectRequest{
			Name:            ptr("Launch v2"),
			Status:          &status,
			MembersToAdd:    []uuid.UUID{f.bob.ID},
			MembersToRemove: []uuid.UUID{f.alice.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, "Launch v2", detail.Name)
		assert.Equal(t, workspace.ProjectActive, detail.Status)
		assert.Equal(t, []uuid.UUID{f.bob.ID}, detail.MemberIDs)

		tasks, err := f.service.ListProjectTasks(ctx, f.managerA, project.ID, "", nil)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, task.ID, tasks[0].ID)
		assert.Nil(t, tasks[0].AssigneeID)
	})

	t.Run("team member is forbidden", func(t *testing.T) {
		_, err := f.service.UpdateProject(ctx, f.bob, project.ID, workspace.UpdateProjectRequest{Name: ptr("nope")})
		assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))
	})
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project := f.createProject(t, f.managerA, "Temporary", f.alice.ID)
	_, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{Title: "t", AssigneeID: &f.alice.ID})
	require.NoError(t, err)

	err = f.service.DeleteProject(ctx, f.alice, project.ID)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))

	require.NoError(t, f.service.DeleteProject(ctx, f.managerA, project.ID))

	_, err = f.service.GetProject(ctx, f.managerA, project.ID)
	assert.True(t, auth.HasTextCode(err, workspace.TextCodeProjectNotFound))

	mine, err := f.service.MyTasks(ctx, f.alice, "")
	require.NoError(t, err)
	assert.Empty(t, mine.Items)
}
