package workspace

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProjectFilter narrows project listings
type ProjectFilter struct {
	CompanyID *uuid.UUID
	MemberID  *uuid.UUID
	Status    ProjectStatus
	Search    string
	Page      int
	Limit     int
}

// Projects stores projects
type Projects interface {
	repository.Repository[*Project]

	GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Project, error)
	RegisterTx(ctx context.Context, tx bun.IDB, project *Project) (*Project, error)
	SaveTx(ctx context.Context, tx bun.IDB, project *Project, columns ...string) (*Project, error)
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	PageTx(ctx context.Context, tx bun.IDB, filter ProjectFilter) ([]*Project, int, error)
}

type projects struct {
	repository.Repository[*Project]
	now func() time.Time
}

var _ Projects = (*projects)(nil)

// NewProjectsRepository creates the bun backed Projects store
func NewProjectsRepository(db *bun.DB) Projects {
	repo := repository.NewRepository[*Project](db, repository.ModelHandlers[*Project]{
		NewRecord: func() *Project { return &Project{} },
		GetID: func(p *Project) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Project, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &projects{
		Repository: repo,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *projects) GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Project, error) {
	record := &Project{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || isNoRows(err) {
			return nil, auth.NewError(ErrProjectNotFound, map[string]any{"project_id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (p *projects) RegisterTx(ctx context.Context, tx bun.IDB, project *Project) (*Project, error) {
	now := p.now()
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	if project.Status == "" {
		project.Status = ProjectPlanning
	}
	project.Name = strings.TrimSpace(project.Name)
	project.CreatedAt = now
	project.UpdatedAt = now

	return p.Repository.CreateTx(ctx, tx, project)
}

// SaveTx writes the given columns, or every column when none are named.
func (p *projects) SaveTx(ctx context.Context, tx bun.IDB, project *Project, columns ...string) (*Project, error) {
	project.UpdatedAt = p.now()

	q := tx.NewUpdate().Model(project).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, auth.NewError(ErrProjectNotFound, map[string]any{"project_id": project.ID.String()})
	}
	return p.GetByUUIDTx(ctx, tx, project.ID)
}

// RemoveTx deletes the project together with its tasks and allocations.
func (p *projects) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().Model((*Task)(nil)).Where("project_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	if _, err := tx.NewDelete().Model((*ProjectMember)(nil)).Where("project_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().Model((*Project)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.NewError(ErrProjectNotFound, map[string]any{"project_id": id.String()})
	}
	return nil
}

func (p *projects) PageTx(ctx context.Context, tx bun.IDB, filter ProjectFilter) ([]*Project, int, error) {
	records := []*Project{}
	q := tx.NewSelect().Model(&records)

	if filter.CompanyID != nil {
		q = q.Where("?TableAlias.company_id = ?", *filter.CompanyID)
	}
	if filter.MemberID != nil {
		q = q.Where("?TableAlias.id IN (?)",
			tx.NewSelect().
				Model((*ProjectMember)(nil)).
				Column("project_id").
				Where("user_id = ?", *filter.MemberID),
		)
	}
	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", filter.Status)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("LOWER(?TableAlias.name) LIKE ?", like).
				WhereOr("LOWER(?TableAlias.description) LIKE ?", like)
		})
	}

	total, err := q.
		OrderExpr("?TableAlias.created_at DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		ScanAndCount(ctx)
	if err != nil && !isNoRows(err) {
		return nil, 0, err
	}
	return records, total, nil
}
