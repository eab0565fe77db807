package workspace

import (
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
)

// Controller exposes the workspace API
type Controller struct {
	service *Service
	guard   *auth.RouteAuthenticator
}

func NewController(service *Service, guard *auth.RouteAuthenticator) *Controller {
	return &Controller{service: service, guard: guard}
}

// RegisterRoutes mounts the project, task and member routes on app. Every
// route requires an access token.
func RegisterRoutes(app auth.RouteRegistrar, c *Controller) {
	protected := c.guard.ProtectedRoute()
	manager := c.guard.RequireRole(auth.RoleCompanyManager)

	app.Post("/projects", c.CreateProject, manager).SetName("projects.create")
	app.Get("/projects", c.ListProjects, protected).SetName("projects.list")
	app.Get("/projects/:id", c.GetProject, protected).SetName("projects.show")
	app.Patch("/projects/:id", c.UpdateProject, manager).SetName("projects.update")
	app.Delete("/projects/:id", c.DeleteProject, manager).SetName("projects.delete")
	app.Get("/projects/:id/members", c.ListProjectMembers, protected).SetName("projects.members")
	app.Get("/projects/:id/tasks", c.ListProjectTasks, protected).SetName("projects.tasks")
	app.Post("/projects/:id/tasks", c.CreateTask, manager).SetName("projects.tasks.create")

	app.Get("/tasks/mine", c.MyTasks, protected).SetName("tasks.mine")
	app.Patch("/tasks/:id/status", c.ChangeTaskStatus, protected).SetName("tasks.status")
	app.Patch("/tasks/:id", c.UpdateTask, manager).SetName("tasks.update")

	app.Get("/members", c.ListMembers, manager).SetName("members.list")
	app.Patch("/members/:id/status", c.SetMemberStatus, manager).SetName("members.status")
	app.Patch("/members/:id/profile", c.UpdateMemberProfile, manager).SetName("members.profile")
}

func (c *Controller) CreateProject(ctx router.Context) error {
	actor, err := c.guard.Principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := CreateProjectRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	detail, err := c.service.CreateProject(ctx.Context(), actor, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusCreated, detail, "Project created")
}

func (c *Controller) ListProjects(ctx router.Context) error {
	actor, err := c.guard.Principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	query := ProjectQuery{
		Page:   queryInt(ctx, "page", 1),
		Limit:  queryInt(ctx, "limit", DefaultPageSize),
		Status: ProjectStatus(ctx.Query("status", "")),
		Search: ctx.Query("search", ""),
	}

	page, err := c.service.ListProjects(ctx.Context(), actor, query)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, page, "")
}

func (c *Controller) GetProject(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	detail, err := c.service.GetProject(ctx.Context(), actor, id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, detail, "")
}

func (c *Controller) UpdateProject(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := UpdateProjectRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	detail, err := c.service.UpdateProject(ctx.Context(), actor, id, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, detail, "Project updated")
}

func (c *Controller) DeleteProject(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	if err := c.service.DeleteProject(ctx.Context(), actor, id); err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, nil, "Project deleted")
}

func (c *Controller) ListProjectMembers(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	members, err := c.service.ListProjectMembers(ctx.Context(), actor, id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, members, "")
}

func (c *Controller) ListProjectTasks(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	var assignee *uuid.UUID
	if raw := strings.TrimSpace(ctx.Query("assignee_id", "")); raw != "" {
		parsed, err := parseID("assignee_id", raw)
		if err != nil {
			return c.fail(ctx, err)
		}
		assignee = &parsed
	}

	records, err := c.service.ListProjectTasks(ctx.Context(), actor, id, TaskStatus(ctx.Query("status", "")), assignee)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, records, "")
}

func (c *Controller) CreateTask(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := CreateTaskRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	task, err := c.service.CreateTask(ctx.Context(), actor, id, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusCreated, task, "Task created")
}

func (c *Controller) MyTasks(ctx router.Context) error {
	actor, err := c.guard.Principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	out, err := c.service.MyTasks(ctx.Context(), actor, TaskStatus(ctx.Query("status", "")))
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, out, "")
}

func (c *Controller) ChangeTaskStatus(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := TaskStatusRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	task, err := c.service.ChangeTaskStatus(ctx.Context(), actor, id, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, task, "Task status updated")
}

func (c *Controller) UpdateTask(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := UpdateTaskRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	task, err := c.service.UpdateTask(ctx.Context(), actor, id, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, task, "Task updated")
}

func (c *Controller) ListMembers(ctx router.Context) error {
	actor, err := c.guard.Principal(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	records, err := c.service.ListMembers(ctx.Context(), actor, auth.Status(ctx.Query("status", "")))
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, records, "")
}

func (c *Controller) SetMemberStatus(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := MemberStatusRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	member, err := c.service.SetMemberStatus(ctx.Context(), actor, id, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, member, "Member status updated")
}

func (c *Controller) UpdateMemberProfile(ctx router.Context) error {
	actor, id, err := c.principalAndID(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}

	req := MemberProfileRequest{}
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, errBadBody(err))
	}

	member, err := c.service.UpdateMemberProfile(ctx.Context(), actor, id, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	return auth.RespondData(ctx, http.StatusOK, member, "Member profile updated")
}

func (c *Controller) principalAndID(ctx router.Context) (auth.Principal, uuid.UUID, error) {
	actor, err := c.guard.Principal(ctx)
	if err != nil {
		return auth.Principal{}, uuid.Nil, err
	}
	id, err := parseID("id", ctx.Param("id", ""))
	if err != nil {
		return auth.Principal{}, uuid.Nil, err
	}
	return actor, id, nil
}

func (c *Controller) fail(ctx router.Context, err error) error {
	return c.guard.ErrorHandler(ctx, err)
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, auth.NewError(auth.ErrValidation, map[string]any{field: "must be a valid UUID"})
	}
	return id, nil
}

func queryInt(ctx router.Context, key string, def int) int {
	raw := strings.TrimSpace(ctx.Query(key, ""))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func errBadBody(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "request body could not be parsed").
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(auth.TextCodeValidation)
}
