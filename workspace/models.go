package workspace

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProjectStatus is the lifecycle of a project
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectPlanning, ProjectActive, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

// TaskStatus is the board column of a task
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

// TaskStatuses lists every status in board order
var TaskStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskReview, TaskDone}

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Project belongs to a single company
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:prj"`
	ID            uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	CompanyID     uuid.UUID     `bun:"company_id,notnull,type:uuid" json:"company_id"`
	Name          string        `bun:"name,notnull" json:"name"`
	Description   string        `bun:"description" json:"description,omitempty"`
	Status        ProjectStatus `bun:"status,notnull" json:"status"`
	StartDate     time.Time     `bun:"start_date,notnull" json:"start_date"`
	EndDate       time.Time     `bun:"end_date,notnull" json:"end_date"`
	ProgressRate  float64       `bun:"progress_rate,notnull,default:0" json:"progress_rate"`
	CreatedBy     uuid.UUID     `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt     time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// ProjectMember allocates a user to a project
type ProjectMember struct {
	bun.BaseModel `bun:"table:project_members,alias:pmb"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ProjectID     uuid.UUID `bun:"project_id,notnull,type:uuid,unique:project_member" json:"project_id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid,unique:project_member" json:"user_id"`
	AllocatedAt   time.Time `bun:"allocated_at,notnull" json:"allocated_at"`
}

// Task is a unit of work inside a project
type Task struct {
	bun.BaseModel `bun:"table:tasks,alias:tsk"`
	ID            uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	ProjectID     uuid.UUID    `bun:"project_id,notnull,type:uuid" json:"project_id"`
	CompanyID     uuid.UUID    `bun:"company_id,notnull,type:uuid" json:"company_id"`
	Title         string       `bun:"title,notnull" json:"title"`
	Description   string       `bun:"description" json:"description,omitempty"`
	AssigneeID    *uuid.UUID   `bun:"assignee_id,type:uuid" json:"assignee_id,omitempty"`
	Status        TaskStatus   `bun:"status,notnull" json:"status"`
	Priority      TaskPriority `bun:"priority,notnull" json:"priority"`
	StartDate     *time.Time   `bun:"start_date" json:"start_date,omitempty"`
	DueDate       *time.Time   `bun:"due_date" json:"due_date,omitempty"`
	ProgressRate  float64      `bun:"progress_rate,notnull,default:0" json:"progress_rate"`
	CreatedBy     uuid.UUID    `bun:"created_by,type:uuid" json:"created_by"`
	CreatedAt     time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time    `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// TaskStatistics counts tasks per status
type TaskStatistics struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Review     int `json:"review"`
	Done       int `json:"done"`
}

// Add counts n tasks in status
func (s *TaskStatistics) Add(status TaskStatus, n int) {
	s.Total += n
	switch status {
	case TaskTodo:
		s.Todo += n
	case TaskInProgress:
		s.InProgress += n
	case TaskReview:
		s.Review += n
	case TaskDone:
		s.Done += n
	}
}

// Models lists the tables owned by this package, in creation order
func Models() []any {
	return []any{
		(*Project)(nil),
		(*ProjectMember)(nil),
		(*Task)(nil),
	}
}
