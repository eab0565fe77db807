package workspace

import (
	"context"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ListProjectTasks lists the tasks of a project, optionally narrowed by
// status and assignee.
func (s *Service) ListProjectTasks(ctx context.Context, actor auth.Principal, projectID uuid.UUID, status TaskStatus, assigneeID *uuid.UUID) ([]*Task, error) {
	if status != "" && !status.IsValid() {
		return nil, auth.NewError(auth.ErrValidation, map[string]any{"status": "must be todo, in_progress, review or done"})
	}

	var records []*Task
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		project, err := s.loadProjectTx(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		records, err = s.repo.Tasks().FindTx(ctx, tx, TaskFilter{
			ProjectID:  &project.ID,
			AssigneeID: assigneeID,
			Status:     status,
		})
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to list tasks")
	}
	return records, nil
}

// CreateTask adds a task to a project. The assignee, if any, must be
// allocated to the project.
func (s *Service) CreateTask(ctx context.Context, actor auth.Principal, projectID uuid.UUID, req CreateTaskRequest) (*Task, error) {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return nil, auth.ErrForbidden
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var task *Task
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		project, err := s.loadProjectTx(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}

		if req.AssigneeID != nil {
			if err := s.requireAllocatedTx(ctx, tx, project.ID, *req.AssigneeID); err != nil {
				return err
			}
		}

		task, err = s.repo.Tasks().RegisterTx(ctx, tx, &Task{
			ProjectID:   project.ID,
			CompanyID:   project.CompanyID,
			Title:       req.Title,
			Description: req.Description,
			AssigneeID:  req.AssigneeID,
			Priority:    req.Priority,
			StartDate:   req.StartDate,
			DueDate:     req.DueDate,
			CreatedBy:   actor.ID,
		})
		if err != nil {
			return err
		}
		return s.refreshProgressTx(ctx, tx, project)
	})
	if err != nil {
		return nil, wrap(err, "failed to create task")
	}

	s.record(ctx, actor, ActivityTaskCreated, "task", task.ID, task.CompanyID, map[string]any{
		"project_id": task.ProjectID.String(),
		"title":      task.Title,
	})
	return task, nil
}

// MyTasks lists the tasks assigned to the caller
func (s *Service) MyTasks(ctx context.Context, actor auth.Principal, status TaskStatus) (*AssignedTasks, error) {
	if status != "" && !status.IsValid() {
		return nil, auth.NewError(auth.ErrValidation, map[string]any{"status": "must be todo, in_progress, review or done"})
	}

	out := &AssignedTasks{}
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		filter := TaskFilter{AssigneeID: &actor.ID}

		stats, err := s.repo.Tasks().StatisticsTx(ctx, tx, filter)
		if err != nil {
			return err
		}
		out.Statistics = stats

		filter.Status = status
		out.Items, err = s.repo.Tasks().FindTx(ctx, tx, filter)
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to list assigned tasks")
	}
	return out, nil
}

// ChangeTaskStatus moves a task across the board. Allowed for the assignee
// and for managers of the task's company.
func (s *Service) ChangeTaskStatus(ctx context.Context, actor auth.Principal, taskID uuid.UUID, req TaskStatusRequest) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var task *Task
	var from TaskStatus

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.loadTaskTx(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}

		assignee := current.AssigneeID != nil && *current.AssigneeID == actor.ID
		if !assignee && !actor.AtLeast(auth.RoleCompanyManager) {
			return auth.ErrForbidden
		}

		from = current.Status
		if from == req.Status {
			task = current
			return nil
		}

		current.Status = req.Status
		if req.Status == TaskDone {
			current.ProgressRate = 100
		}
		if task, err = s.repo.Tasks().SaveTx(ctx, tx, current, "status", "progress_rate"); err != nil {
			return err
		}

		project, err := s.repo.Projects().GetByUUIDTx(ctx, tx, task.ProjectID)
		if err != nil {
			return err
		}
		return s.refreshProgressTx(ctx, tx, project)
	})
	if err != nil {
		return nil, wrap(err, "failed to change task status")
	}

	if from != task.Status {
		s.record(ctx, actor, ActivityTaskStatusChanged, "task", task.ID, task.CompanyID, map[string]any{
			"from": string(from),
			"to":   string(task.Status),
		})
	}
	return task, nil
}

// UpdateTask edits task fields. A new assignee must be allocated to the
// task's project.
func (s *Service) UpdateTask(ctx context.Context, actor auth.Principal, taskID uuid.UUID, req UpdateTaskRequest) (*Task, error) {
	if !actor.AtLeast(auth.RoleCompanyManager) {
		return nil, auth.ErrForbidden
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var task *Task
	changed := []string{}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		changed = changed[:0]

		current, err := s.loadTaskTx(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}

		if req.Title != nil {
			current.Title = *req.Title
			changed = append(changed, "title")
		}
		if req.Description != nil {
			current.Description = *req.Description
			changed = append(changed, "description")
		}
		if req.Priority != nil {
			current.Priority = *req.Priority
			changed = append(changed, "priority")
		}
		if req.DueDate != nil {
			if current.StartDate != nil {
				if err := checkDateRange(*current.StartDate, *req.DueDate); err != nil {
					return err
				}
			}
			current.DueDate = req.DueDate
			changed = append(changed, "due_date")
		}
		if req.ProgressRate != nil {
			current.ProgressRate = *req.ProgressRate
			changed = append(changed, "progress_rate")
		}

		switch {
		case req.Unassign:
			current.AssigneeID = nil
			changed = append(changed, "assignee_id")
		case req.AssigneeID != nil:
			if err := s.requireAllocatedTx(ctx, tx, current.ProjectID, *req.AssigneeID); err != nil {
				return err
			}
			current.AssigneeID = req.AssigneeID
			changed = append(changed, "assignee_id")
		}

		if len(changed) == 0 {
			task = current
			return nil
		}

		task, err = s.repo.Tasks().SaveTx(ctx, tx, current, changed...)
		return err
	})
	if err != nil {
		return nil, wrap(err, "failed to update task")
	}

	if len(changed) > 0 {
		s.record(ctx, actor, ActivityTaskUpdated, "task", task.ID, task.CompanyID, map[string]any{
			"fields": changed,
		})
	}
	return task, nil
}

func (s *Service) loadTaskTx(ctx context.Context, tx bun.IDB, actor auth.Principal, id uuid.UUID) (*Task, error) {
	task, err := s.repo.Tasks().GetByUUIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !actor.InCompany(task.CompanyID) {
		return nil, auth.NewError(ErrTaskNotFound, map[string]any{"task_id": id.String()})
	}
	return task, nil
}

func (s *Service) requireAllocatedTx(ctx context.Context, tx bun.IDB, projectID, userID uuid.UUID) error {
	ok, err := s.repo.ProjectMembers().IsAllocatedTx(ctx, tx, projectID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.NewError(ErrAssigneeNotAllocated, map[string]any{
			"project_id":  projectID.String(),
			"assignee_id": userID.String(),
		})
	}
	return nil
}

// refreshProgressTx sets the project progress to the share of done tasks
func (s *Service) refreshProgressTx(ctx context.Context, tx bun.IDB, project *Project) error {
	stats, err := s.repo.Tasks().StatisticsTx(ctx, tx, TaskFilter{ProjectID: &project.ID})
	if err != nil {
		return err
	}

	rate := 0.0
	if stats.Total > 0 {
		rate = float64(stats.Done) * 100 / float64(stats.Total)
	}
	if rate == project.ProgressRate {
		return nil
	}

	project.ProgressRate = rate
	_, err = s.repo.Projects().SaveTx(ctx, tx, project, "progress_rate")
	return err
}
