package workspace

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TaskFilter narrows task listings
type TaskFilter struct {
	ProjectID  *uuid.UUID
	CompanyID  *uuid.UUID
	AssigneeID *uuid.UUID
	Status     TaskStatus
}

// Tasks stores tasks
type Tasks interface {
	repository.Repository[*Task]

	GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Task, error)
	RegisterTx(ctx context.Context, tx bun.IDB, task *Task) (*Task, error)
	SaveTx(ctx context.Context, tx bun.IDB, task *Task, columns ...string) (*Task, error)
	FindTx(ctx context.Context, tx bun.IDB, filter TaskFilter) ([]*Task, error)
	StatisticsTx(ctx context.Context, tx bun.IDB, filter TaskFilter) (TaskStatistics, error)
	CountByAssigneeTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID) (map[uuid.UUID]int, error)
	UnassignTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID, userIDs ...uuid.UUID) error
}

type tasks struct {
	repository.Repository[*Task]
	now func() time.Time
}

var _ Tasks = (*tasks)(nil)

// NewTasksRepository creates the bun backed Tasks store
func NewTasksRepository(db *bun.DB) Tasks {
	repo := repository.NewRepository[*Task](db, repository.ModelHandlers[*Task]{
		NewRecord: func() *Task { return &Task{} },
		GetID: func(t *Task) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Task, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "title"
		},
	})

	return &tasks{
		Repository: repo,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (t *tasks) GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Task, error) {
	record := &Task{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || isNoRows(err) {
			return nil, auth.NewError(ErrTaskNotFound, map[string]any{"task_id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (t *tasks) RegisterTx(ctx context.Context, tx bun.IDB, task *Task) (*Task, error) {
	now := t.now()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = TaskTodo
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	task.Title = strings.TrimSpace(task.Title)
	task.CreatedAt = now
	task.UpdatedAt = now

	return t.Repository.CreateTx(ctx, tx, task)
}

// SaveTx writes the given columns, or every column when none are named.
func (t *tasks) SaveTx(ctx context.Context, tx bun.IDB, task *Task, columns ...string) (*Task, error) {
	task.UpdatedAt = t.now()

	q := tx.NewUpdate().Model(task).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, auth.NewError(ErrTaskNotFound, map[string]any{"task_id": task.ID.String()})
	}
	return t.GetByUUIDTx(ctx, tx, task.ID)
}

func (t *tasks) FindTx(ctx context.Context, tx bun.IDB, filter TaskFilter) ([]*Task, error) {
	records := []*Task{}
	err := applyTaskFilter(tx.NewSelect().Model(&records), filter).
		OrderExpr("?TableAlias.due_date IS NULL").
		OrderExpr("?TableAlias.due_date ASC").
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	return records, nil
}

type statusCount struct {
	Status TaskStatus `bun:"status"`
	Count  int        `bun:"task_count"`
}

func (t *tasks) StatisticsTx(ctx context.Context, tx bun.IDB, filter TaskFilter) (TaskStatistics, error) {
	stats := TaskStatistics{}
	rows := []statusCount{}

	filter.Status = ""
	err := applyTaskFilter(tx.NewSelect().Model((*Task)(nil)), filter).
		ColumnExpr("?TableAlias.status AS status").
		ColumnExpr("COUNT(*) AS task_count").
		GroupExpr("?TableAlias.status").
		Scan(ctx, &rows)
	if err != nil && !isNoRows(err) {
		return stats, err
	}

	for _, row := range rows {
		stats.Add(row.Status, row.Count)
	}
	return stats, nil
}

type assigneeCount struct {
	AssigneeID uuid.UUID `bun:"assignee_id"`
	Count      int       `bun:"task_count"`
}

func (t *tasks) CountByAssigneeTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID) (map[uuid.UUID]int, error) {
	rows := []assigneeCount{}
	err := tx.NewSelect().
		Model((*Task)(nil)).
		ColumnExpr("?TableAlias.assignee_id AS assignee_id").
		ColumnExpr("COUNT(*) AS task_count").
		Where("?TableAlias.project_id = ?", projectID).
		Where("?TableAlias.assignee_id IS NOT NULL").
		GroupExpr("?TableAlias.assignee_id").
		Scan(ctx, &rows)
	if err != nil && !isNoRows(err) {
		return nil, err
	}

	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.AssigneeID] = row.Count
	}
	return out, nil
}

// UnassignTx clears the assignee of tasks held by users leaving the project.
func (t *tasks) UnassignTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID, userIDs ...uuid.UUID) error {
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	_, err := tx.NewUpdate().
		Model((*Task)(nil)).
		Set("assignee_id = NULL").
		Set("updated_at = ?", t.now()).
		Where("project_id = ?", projectID).
		Where("assignee_id IN (?)", bun.In(userIDs)).
		Exec(ctx)
	return err
}

func applyTaskFilter(q *bun.SelectQuery, filter TaskFilter) *bun.SelectQuery {
	if filter.ProjectID != nil {
		q = q.Where("?TableAlias.project_id = ?", *filter.ProjectID)
	}
	if filter.CompanyID != nil {
		q = q.Where("?TableAlias.company_id = ?", *filter.CompanyID)
	}
	if filter.AssigneeID != nil {
		q = q.Where("?TableAlias.assignee_id = ?", *filter.AssigneeID)
	}
	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", filter.Status)
	}
	return q
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
