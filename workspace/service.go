package workspace

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	ActivityProjectCreated    auth.ActivityEventType = "project.created"
	ActivityProjectUpdated    auth.ActivityEventType = "project.updated"
	ActivityProjectDeleted    auth.ActivityEventType = "project.deleted"
	ActivityTaskCreated       auth.ActivityEventType = "task.created"
	ActivityTaskUpdated       auth.ActivityEventType = "task.updated"
	ActivityTaskStatusChanged auth.ActivityEventType = "task.status.changed"
)

const opTimeout = 10 * time.Second

// ProjectDetail is a project with its allocation and task counts
type ProjectDetail struct {
	*Project
	MemberIDs  []uuid.UUID    `json:"member_ids"`
	Statistics TaskStatistics `json:"statistics"`
}

// MemberView is a project member with the number of tasks assigned to them
type MemberView struct {
	UserID      uuid.UUID     `json:"user_id"`
	Email       string        `json:"email"`
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Role        auth.UserRole `json:"role"`
	Status      auth.Status   `json:"status"`
	AllocatedAt time.Time     `json:"allocated_at"`
	TaskCount   int           `json:"task_count"`
}

// AssignedTasks are the caller's tasks with per status counts
type AssignedTasks struct {
	Items      []*Task        `json:"items"`
	Statistics TaskStatistics `json:"statistics"`
}

// Option customizes the Service
type Option func(*Service)

func WithLogger(logger auth.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithActivitySink records project and task changes
func WithActivitySink(sink auth.ActivitySink) Option {
	return func(s *Service) {
		if sink != nil {
			s.activity = sink
		}
	}
}

// Service implements projects, tasks and member administration for the
// caller's company.
type Service struct {
	repo      Manager
	accounts  auth.RepositoryManager
	approvals *auth.ApprovalService
	profiles  *auth.UpdateProfileHandler
	logger    auth.Logger
	activity  auth.ActivitySink
	now       func() time.Time
}

func NewService(repo Manager, accounts auth.RepositoryManager, approvals *auth.ApprovalService, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		accounts:  accounts,
		approvals: approvals,
		logger:    nopLogger{},
		activity:  auth.ActivitySinkFunc(nil),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.profiles = auth.NewUpdateProfileHandler(accounts).
		WithActivitySink(s.activity).
		WithLogger(s.logger)
	return s
}

func (s *Service) CreateProject(ctx context.Context, actor auth.Principal, req CreateProjectRequest) (*ProjectDetail, error) {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return nil, auth.ErrForbidden
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	companyID, err := targetCompany(actor, req.CompanyID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var detail *ProjectDetail
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		members := uniqueIDs(req.MemberIDs)
		if err := s.checkMembersTx(ctx, tx, companyID, members); err != nil {
			return err
		}

		project, err := s.repo.Projects().RegisterTx(ctx, tx, &Project{
			CompanyID:   companyID,
			Name:        req.Name,
			Description: req.Description,
			Status:      req.Status,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			CreatedBy:   actor.ID,
		})
		if err != nil {
			return err
		}

		if err := s.repo.ProjectMembers().AllocateTx(ctx, tx, project.ID, members...); err != nil {
			return err
		}

		detail = &ProjectDetail{Project: project, MemberIDs: members}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to create project")
	}

	s.record(ctx, actor, ActivityProjectCreated, "project", detail.ID, detail.CompanyID, map[string]any{
		"name":    detail.Name,
		"members": len(detail.MemberIDs),
	})
	return detail, nil
}

// ListProjects pages through the projects of the caller's company. Admins
// see every company.
func (s *Service) ListProjects(ctx context.Context, actor auth.Principal, query ProjectQuery) (*ProjectPage, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	query = query.Normalize()

	filter := ProjectFilter{
		Status: query.Status,
		Search: query.Search,
		Page:   query.Page,
		Limit:  query.Limit,
	}

	scope, err := companyScope(actor)
	if err != nil {
		return nil, err
	}
	filter.CompanyID = scope

	var records []*Project
	var total int
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		records, total, err = s.repo.Projects().PageTx(ctx, tx, filter)
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to list projects")
	}

	return &ProjectPage{
		Items:      records,
		Pagination: newPagination(query.Page, query.Limit, total),
	}, nil
}

func (s *Service) GetProject(ctx context.Context, actor auth.Principal, id uuid.UUID) (*ProjectDetail, error) {
	var detail *ProjectDetail
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		project, err := s.loadProjectTx(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		detail, err = s.detailTx(ctx, tx, project)
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to load project")
	}
	return detail, nil
}

func (s *Service) UpdateProject(ctx context.Context, actor auth.Principal, id uuid.UUID, req UpdateProjectRequest) (*ProjectDetail, error) {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return nil, auth.ErrForbidden
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var detail *ProjectDetail
	changed := []string{}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		changed = changed[:0]

		project, err := s.loadProjectTx(ctx, tx, actor, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			project.Name = *req.Name
			changed = append(changed, "name")
		}
		if req.Description != nil {
			project.Description = *req.Description
			changed = append(changed, "description")
		}
		if req.Status != nil {
			project.Status = *req.Status
			changed = append(changed, "status")
		}
		if req.StartDate != nil {
			project.StartDate = *req.StartDate
			changed = append(changed, "start_date")
		}
		if req.EndDate != nil {
			project.EndDate = *req.EndDate
			changed = append(changed, "end_date")
		}
		if req.ProgressRate != nil {
			project.ProgressRate = *req.ProgressRate
			changed = append(changed, "progress_rate")
		}

		if req.StartDate != nil || req.EndDate != nil {
			if err := checkDateRange(project.StartDate, project.EndDate); err != nil {
				return err
			}
		}

		if len(changed) > 0 {
			if project, err = s.repo.Projects().SaveTx(ctx, tx, project, changed...); err != nil {
				return err
			}
		}

		add := uniqueIDs(req.MembersToAdd)
		if err := s.checkMembersTx(ctx, tx, project.CompanyID, add); err != nil {
			return err
		}
		if err := s.repo.ProjectMembers().AllocateTx(ctx, tx, project.ID, add...); err != nil {
			return err
		}

		if remove := uniqueIDs(req.MembersToRemove); len(remove) > 0 {
			if err := s.repo.ProjectMembers().ReleaseTx(ctx, tx, project.ID, remove...); err != nil {
				return err
			}
			if err := s.repo.Tasks().UnassignTx(ctx, tx, project.ID, remove...); err != nil {
				return err
			}
		}

		detail, err = s.detailTx(ctx, tx, project)
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to update project")
	}

	s.record(ctx, actor, ActivityProjectUpdated, "project", detail.ID, detail.CompanyID, map[string]any{
		"fields":          changed,
		"members_added":   len(req.MembersToAdd),
		"members_removed": len(req.MembersToRemove),
	})
	return detail, nil
}

// DeleteProject removes a project and everything in it
func (s *Service) DeleteProject(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return auth.ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var project *Project
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if project, err = s.loadProjectTx(ctx, tx, actor, id); err != nil {
			return err
		}
		return s.repo.Projects().RemoveTx(ctx, tx, project.ID)
	})
	if err != nil {
		return wrap(err, "failed to delete project")
	}

	s.record(ctx, actor, ActivityProjectDeleted, "project", project.ID, project.CompanyID, map[string]any{
		"name": project.Name,
	})
	return nil
}

func (s *Service) ListProjectMembers(ctx context.Context, actor auth.Principal, projectID uuid.UUID) ([]MemberView, error) {
	var allocations []*ProjectMember
	var counts map[uuid.UUID]int

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		project, err := s.loadProjectTx(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		if allocations, err = s.repo.ProjectMembers().ListTx(ctx, tx, project.ID); err != nil {
			return err
		}
		counts, err = s.repo.Tasks().CountByAssigneeTx(ctx, tx, project.ID)
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to list project members")
	}

	out := make([]MemberView, 0, len(allocations))
	if len(allocations) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(allocations))
	for _, a := range allocations {
		ids = append(ids, a.UserID)
	}

	users, err := s.accounts.Users().ListMembers(ctx, auth.MemberFilter{IDs: ids})
	if err != nil {
		return nil, wrap(err, "failed to list project members")
	}
	byID := make(map[uuid.UUID]*auth.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, a := range allocations {
		u, ok := byID[a.UserID]
		if !ok {
			continue
		}
		out = append(out, MemberView{
			UserID:      u.ID,
			Email:       u.Email,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Role:        u.Role,
			Status:      u.Status,
			AllocatedAt: a.AllocatedAt,
			TaskCount:   counts[u.ID],
		})
	}
	return out, nil
}

func (s *Service) loadProjectTx(ctx context.Context, tx bun.IDB, actor auth.Principal, id uuid.UUID) (*Project, error) {
	project, err := s.repo.Projects().GetByUUIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !actor.InCompany(project.CompanyID) {
		return nil, auth.NewError(ErrProjectNotFound, map[string]any{"project_id": id.String()})
	}
	return project, nil
}

func (s *Service) detailTx(ctx context.Context, tx bun.IDB, project *Project) (*ProjectDetail, error) {
	members, err := s.repo.ProjectMembers().UserIDsTx(ctx, tx, project.ID)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.Tasks().StatisticsTx(ctx, tx, TaskFilter{ProjectID: &project.ID})
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{Project: project, MemberIDs: members, Statistics: stats}, nil
}

// checkMembersTx requires every id to be an active user of companyID
func (s *Service) checkMembersTx(ctx context.Context, tx bun.IDB, companyID uuid.UUID, ids []uuid.UUID) error {
	invalid := []string{}
	for _, id := range ids {
		user, err := s.accounts.Users().GetByUUIDTx(ctx, tx, id)
		if err != nil {
			if auth.HasTextCode(err, auth.TextCodeNotFound) {
				invalid = append(invalid, id.String())
				continue
			}
			return err
		}
		if !user.BelongsTo(companyID) || user.Status != auth.StatusActive {
			invalid = append(invalid, id.String())
		}
	}

	if len(invalid) > 0 {
		return auth.NewError(ErrInvalidProjectMembers, map[string]any{"member_ids": invalid})
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor auth.Principal, kind auth.ActivityEventType, objectType string, objectID, companyID uuid.UUID, meta map[string]any) {
	event := auth.ActivityEvent{
		EventType:  kind,
		Actor:      actor.Ref(),
		ObjectType: objectType,
		ObjectID:   objectID.String(),
		CompanyID:  companyID.String(),
		Metadata:   meta,
		OccurredAt: s.now(),
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error", "event", string(kind), "error", err)
	}
}

// companyScope is nil for admins, the caller's company otherwise
func companyScope(actor auth.Principal) (*uuid.UUID, error) {
	if actor.Is(auth.RoleSystemAdmin) {
		return nil, nil
	}
	if actor.CompanyID == nil {
		return nil, auth.ErrNoCompany
	}
	return actor.CompanyID, nil
}

// targetCompany resolves the company a new record belongs to. Admins must
// name it explicitly.
func targetCompany(actor auth.Principal, requested *uuid.UUID) (uuid.UUID, error) {
	if !actor.Is(auth.RoleSystemAdmin) {
		if actor.CompanyID == nil {
			return uuid.Nil, auth.ErrNoCompany
		}
		return *actor.CompanyID, nil
	}

	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, goerrors.New("company_id is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(auth.TextCodeValidation).
			WithMetadata(map[string]any{"company_id": "cannot be blank"})
	}
	return *requested, nil
}

func wrap(err error, msg string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal).
		WithTextCode(auth.TextCodeInternal)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
