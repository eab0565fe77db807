package workspace_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/workspace"
)

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project := f.createProject(t, f.managerA, "Board", f.alice.ID)

	t.Run("assignee must be allocated", func(t *testing.T) {
		_, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{
			Title:      "Review",
			AssigneeID: &f.bob.ID,
		})
		assert.True(t, auth.HasTextCode(err, workspace.TextCodeAssigneeNotAllocated))
		assert.Equal(t, 403, auth.HTTPStatus(err))
	})

	t.Run("defaults", func(t *testing.T) {
		task, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{
			Title:      "  Draft  ",
			AssigneeID: &f.alice.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Draft", task.Title)
		assert.Equal(t, workspace.TaskTodo, task.Status)
		assert.Equal(t, workspace.PriorityMedium, task.Priority)
		assert.Equal(t, f.companyA, task.CompanyID)
	})

	t.Run("invalid priority", func(t *testing.T) {
		_, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{
			Title:    "x",
			Priority: "urgent",
		})
		assert.True(t, auth.HasTextCode(err, auth.TextCodeValidation))
	})

	t.Run("team member is forbidden", func(t *testing.T) {
		_, err := f.service.CreateTask(ctx, f.alice, project.ID, workspace.CreateTaskRequest{Title: "x"})
		assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))
	})

	t.Run("other company cannot see the project", func(t *testing.T) {
		_, err := f.service.CreateTask(ctx, f.managerB, project.ID, workspace.CreateTaskRequest{Title: "x"})
		assert.True(t, auth.HasTextCode(err, workspace.TextCodeProjectNotFound))
	})
}

func TestChangeTaskStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project := f.createProject(t, f.managerA, "Board", f.alice.ID, f.bob.ID)
	task, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{
		Title:      "Ship",
		AssigneeID: &f.alice.ID,
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		actor    auth.Principal
		status   workspace.TaskStatus
		textCode string
	}{
		{"assignee", f.alice, workspace.TaskInProgress, ""},
		{"same company manager", f.managerA, workspace.TaskReview, ""},
		{"other member", f.bob, workspace.TaskDone, auth.TextCodeForbidden},
		{"other company manager", f.managerB, workspace.TaskDone, workspace.TextCodeTaskNotFound},
		{"unknown status", f.alice, "blocked", auth.TextCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := f.service.ChangeTaskStatus(ctx, tt.actor, task.ID, workspace.TaskStatusRequest{Status: tt.status})
			if tt.textCode != "" {
				assert.True(t, auth.HasTextCode(err, tt.textCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, updated.Status)
		})
	}

	t.Run("done updates project progress", func(t *testing.T) {
		_, err := f.service.ChangeTaskStatus(ctx, f.alice, task.ID, workspace.TaskStatusRequest{Status: workspace.TaskDone})
		require.NoError(t, err)

		detail, err := f.service.GetProject(ctx, f.managerA, project.ID)
		require.NoError(t, err)
		assert.Equal(t, 100.0, detail.ProgressRate)
		assert.Equal(t, workspace.TaskStatistics{Total: 1, Done: 1}, detail.Statistics)
	})
}

func TestUpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	project := f.createProject(t, f.managerA, "Board", f.alice.ID)
	task, err := f.service.CreateTask(ctx, f.managerA, project.ID, workspace.CreateTaskRequest{Title: "Plan"})
	require.NoError(t, err)

	_, err = f.service.UpdateTask(ctx, f.managerA, task.ID, workspace.UpdateTaskRequest{AssigneeID: &f.bob.ID})
	assert.True(t, auth.HasTextCode(err, workspace.TextCodeAssigneeNotAllocated))

	high := workspace.PriorityHigh
	updated, err := f.service.UpdateTask(ctx, f.managerA, task.ID, workspace.UpdateTaskRequest{
		Title:      ptr("Plan sprint"),
		Priority:   &high,
		AssigneeID: &f.alice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Plan sprint", updated.Title)
	assert.Equal(t, workspace.PriorityHigh, updated.Priority)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, f.alice.ID, *updated.AssigneeID)

	updated, err = f.service.UpdateTask(ctx, f.managerA, task.ID, workspace.UpdateTaskRequest{Unassign: true})
	require.NoError(t, err)
	assert.Nil(t, updated.AssigneeID)

	_, err = f.service.UpdateTask(ctx, f.alice, task.ID, workspace.UpdateTaskRequest{Title: ptr("mine")})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))
}

func TestMyTasksAndProjectMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createProject(t, f.managerA, "First", f.alice.ID, f.bob.ID)
	second := f.createProject(t, f.managerA, "Second", f.alice.ID)

	for _, p := range []uuid.UUID{first.ID, first.ID, second.ID} {
		_, err := f.service.CreateTask(ctx, f.managerA, p, workspace.CreateTaskRequest{Title: "work", AssigneeID: &f.alice.ID})
		require.NoError(t, err)
	}
	_, err := f.service.CreateTask(ctx, f.managerA, first.ID, workspace.CreateTaskRequest{Title: "other", AssigneeID: &f.bob.ID})
	require.NoError(t, err)

	mine, err := f.service.MyTasks(ctx, f.alice, "")
	require.NoError(t, err)
	assert.Len(t, mine.Items, 3)
	assert.Equal(t, 3, mine.Statistics.Todo)

	filtered, err := f.service.MyTasks(ctx, f.alice, workspace.TaskDone)
	require.NoError(t, err)
	assert.Empty(t, filtered.Items)
	assert.Equal(t, 3, filtered.Statistics.Total)

	members, err := f.service.ListProjectMembers(ctx, f.managerA, first.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	counts := map[uuid.UUID]int{}
	for _, m := range members {
		counts[m.UserID] = m.TaskCount
	}
	assert.Equal(t, 2, counts[f.alice.ID])
	assert.Equal(t, 1, counts[f.bob.ID])

	tasks, err := f.service.ListProjectTasks(ctx, f.bob, first.ID, workspace.TaskTodo, &f.bob.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	members, err := f.service.ListMembers(ctx, f.managerA, "")
	require.NoError(t, err)
	assert.Len(t, members, 3)

	active, err := f.service.ListMembers(ctx, f.managerA, auth.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	all, err := f.service.ListMembers(ctx, f.admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = f.service.ListMembers(ctx, f.alice, "")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))

	updated, err := f.service.SetMemberStatus(ctx, f.managerA, f.bob.ID, workspace.MemberStatusRequest{Status: auth.StatusInactive})
	require.NoError(t, err)
	assert.Equal(t, auth.StatusInactive, updated.Status)

	_, err = f.service.SetMemberStatus(ctx, f.managerB, f.alice.ID, workspace.MemberStatusRequest{Status: auth.StatusInactive})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeForbidden))

	_, err = f.service.SetMemberStatus(ctx, f.managerA, f.alice.ID, workspace.MemberStatusRequest{Status: auth.StatusRejected})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeValidation))
}

func TestUpdateMemberProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member, err := f.service.UpdateMemberProfile(ctx, f.managerA, f.alice.ID, workspace.MemberProfileRequest{
		FirstName: ptr("Alice"),
		Phone:     ptr("+44 20 7031 3000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", member.FirstName)
	assert.Equal(t, "+442070313000", member.Phone)

	events := *f.events
	require.NotEmpty(t, events)
	assert.Equal(t, auth.ActivityEventProfileUpdated, events[len(events)-1].EventType)

	tests := []struct {
		name  string
		actor auth.Principal
		id    uuid.UUID
		code  string
	}{
		{"other company manager", f.managerB, f.alice.ID, auth.TextCodeForbidden},
		{"team member", f.alice, f.bob.ID, auth.TextCodeForbidden},
		{"team member on self", f.alice, f.alice.ID, auth.TextCodeForbidden},
		{"unknown member", f.managerA, uuid.New(), auth.TextCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.UpdateMemberProfile(ctx, tt.actor, tt.id, workspace.MemberProfileRequest{LastName: ptr("Nope")})
			assert.True(t, auth.HasTextCode(err, tt.code), "got %v", err)
		})
	}
}
