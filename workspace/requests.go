package workspace

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// CreateProjectRequest is the payload of POST /projects
type CreateProjectRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	MemberIDs   []uuid.UUID   `json:"member_ids"`
	// CompanyID is only read for system admins
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
}

// Validate will run validation rules
func (r CreateProjectRequest) Validate() error {
	if err := auth.ValidateInput("invalid project payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Name, validation.Required, validation.RuneLength(1, 200)),
			validation.Field(&r.Description, validation.RuneLength(0, 2000)),
			validation.Field(&r.Status, validation.By(validProjectStatus)),
			validation.Field(&r.StartDate, validation.Required),
			validation.Field(&r.EndDate, validation.Required),
		)
	}); err != nil {
		return err
	}
	return checkDateRange(r.StartDate, r.EndDate)
}

// UpdateProjectRequest is the payload of PATCH /projects/:id. Nil fields are
// left untouched.
type UpdateProjectRequest struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Status          *ProjectStatus `json:"status,omitempty"`
	StartDate       *time.Time     `json:"start_date,omitempty"`
	EndDate         *time.Time     `json:"end_date,omitempty"`
	ProgressRate    *float64       `json:"progress_rate,omitempty"`
	MembersToAdd    []uuid.UUID    `json:"members_to_add,omitempty"`
	MembersToRemove []uuid.UUID    `json:"members_to_remove,omitempty"`
}

// Validate will run validation rules
func (r UpdateProjectRequest) Validate() error {
	return auth.ValidateInput("invalid project payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Name, validation.NilOrNotEmpty, validation.RuneLength(1, 200)),
			validation.Field(&r.Description, validation.RuneLength(0, 2000)),
			validation.Field(&r.Status, validation.By(validProjectStatus)),
			validation.Field(&r.ProgressRate, validation.Min(0.0), validation.Max(100.0)),
		)
	})
}

// ProjectQuery holds the listing parameters of GET /projects
type ProjectQuery struct {
	Page   int
	Limit  int
	Status ProjectStatus
	Search string
}

// Normalize clamps paging to sane values
func (q ProjectQuery) Normalize() ProjectQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

// Validate will run validation rules
func (q ProjectQuery) Validate() error {
	return auth.ValidateInput("invalid project query", func() error {
		return validation.ValidateStruct(&q,
			validation.Field(&q.Status, validation.By(validProjectStatus)),
			validation.Field(&q.Search, validation.RuneLength(0, 200)),
		)
	})
}

// Pagination describes a page of results
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ProjectPage is a page of projects
type ProjectPage struct {
	Items      []*Project `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// CreateTaskRequest is the payload of POST /projects/:id/tasks
type CreateTaskRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	AssigneeID  *uuid.UUID   `json:"assignee_id,omitempty"`
	Priority    TaskPriority `json:"priority"`
	StartDate   *time.Time   `json:"start_date,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
}

// Validate will run validation rules
func (r CreateTaskRequest) Validate() error {
	if err := auth.ValidateInput("invalid task payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Title, validation.Required, validation.RuneLength(1, 200)),
			validation.Field(&r.Description, validation.RuneLength(0, 2000)),
			validation.Field(&r.Priority, validation.By(validPriority)),
		)
	}); err != nil {
		return err
	}
	if r.StartDate != nil && r.DueDate != nil {
		return checkDateRange(*r.StartDate, *r.DueDate)
	}
	return nil
}

// UpdateTaskRequest is the payload of PATCH /tasks/:id
type UpdateTaskRequest struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Priority     *TaskPriority `json:"priority,omitempty"`
	DueDate      *time.Time    `json:"due_date,omitempty"`
	ProgressRate *float64      `json:"progress_rate,omitempty"`
	AssigneeID   *uuid.UUID    `json:"assignee_id,omitempty"`
	// Unassign clears the assignee, AssigneeID is ignored when set
	Unassign bool `json:"unassign,omitempty"`
}

// Validate will run validation rules
func (r UpdateTaskRequest) Validate() error {
	return auth.ValidateInput("invalid task payload", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Title, validation.NilOrNotEmpty, validation.RuneLength(1, 200)),
			validation.Field(&r.Description, validation.RuneLength(0, 2000)),
			validation.Field(&r.Priority, validation.By(validPriority)),
			validation.Field(&r.ProgressRate, validation.Min(0.0), validation.Max(100.0)),
		)
	})
}

// TaskStatusRequest is the payload of PATCH /tasks/:id/status
type TaskStatusRequest struct {
	Status TaskStatus `json:"status"`
}

// Validate will run validation rules
func (r TaskStatusRequest) Validate() error {
	return auth.ValidateInput("invalid task status", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Status, validation.Required, validation.By(validTaskStatus)),
		)
	})
}

// MemberStatusRequest is the payload of PATCH /members/:id/status
type MemberStatusRequest struct {
	Status auth.Status `json:"status"`
}

// Validate will run validation rules
func (r MemberStatusRequest) Validate() error {
	return auth.ValidateInput("invalid member status", func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Status, validation.Required, validation.In(auth.StatusActive, auth.StatusInactive)),
		)
	})
}

// MemberProfileRequest is the payload of PATCH /members/:id/profile.
// Validation happens in auth.UpdateProfileMessage.
type MemberProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone_number"`
}

func checkDateRange(start, end time.Time) error {
	if !end.After(start) {
		return auth.NewError(ErrInvalidDateRange, map[string]any{
			"start_date": start.Format(time.RFC3339),
			"end_date":   end.Format(time.RFC3339),
		})
	}
	return nil
}

func validProjectStatus(value any) error {
	s, _ := derefValue[ProjectStatus](value)
	if s == "" || s.IsValid() {
		return nil
	}
	return errors.New("must be planning, active, completed or archived")
}

func validTaskStatus(value any) error {
	s, _ := derefValue[TaskStatus](value)
	if s == "" || s.IsValid() {
		return nil
	}
	return errors.New("must be todo, in_progress, review or done")
}

func validPriority(value any) error {
	p, _ := derefValue[TaskPriority](value)
	if p == "" || p.IsValid() {
		return nil
	}
	return errors.New("must be low, medium or high")
}

func derefValue[T any](value any) (T, bool) {
	switch v := value.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}
