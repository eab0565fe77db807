package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Companies stores tenants
type Companies interface {
	repository.Repository[*Company]

	GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Company, error)
	GetByInvitationCodeTx(ctx context.Context, tx bun.IDB, code string) (*Company, error)
	NameExistsTx(ctx context.Context, tx bun.IDB, name string) (bool, error)
	InvitationCodeExistsTx(ctx context.Context, tx bun.IDB, code string) (bool, error)

	RegisterTx(ctx context.Context, tx bun.IDB, company *Company) (*Company, error)
	SetManagerTx(ctx context.Context, tx bun.IDB, id, managerID uuid.UUID) error
	UpdateStatusTx(ctx context.Context, tx bun.IDB, company *Company, status Status, approvedBy *uuid.UUID) (*Company, error)
	SetInvitationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) error

	ListByStatus(ctx context.Context, status Status) ([]*Company, error)
}

type companies struct {
	repository.Repository[*Company]
	db  *bun.DB
	now func() time.Time
}

var _ Companies = (*companies)(nil)

// NewCompaniesRepository creates the bun backed Companies store
func NewCompaniesRepository(db *bun.DB) Companies {
	repo := repository.NewRepository[*Company](db, repository.ModelHandlers[*Company]{
		NewRecord: func() *Company { return &Company{} },
		GetID: func(c *Company) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Company, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &companies{
		Repository: repo,
		db:         db,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *companies) GetByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Company, error) {
	record := &Company{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, NewError(ErrNotFound, map[string]any{"company_id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (c *companies) GetByInvitationCodeTx(ctx context.Context, tx bun.IDB, code string) (*Company, error) {
	code = NormalizeInvitationCode(code)
	if code == "" {
		return nil, ErrInvalidInvitationCode
	}

	record := &Company{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.invitation_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrInvalidInvitationCode
		}
		return nil, err
	}
	return record, nil
}

func (c *companies) NameExistsTx(ctx context.Context, tx bun.IDB, name string) (bool, error) {
	return tx.NewSelect().
		Model((*Company)(nil)).
		WhereAllWithDeleted().
		Where("LOWER(?TableAlias.name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Exists(ctx)
}

func (c *companies) InvitationCodeExistsTx(ctx context.Context, tx bun.IDB, code string) (bool, error) {
	return tx.NewSelect().
		Model((*Company)(nil)).
		WhereAllWithDeleted().
		Where("?TableAlias.invitation_code = ?", NormalizeInvitationCode(code)).
		Exists(ctx)
}

func (c *companies) RegisterTx(ctx context.Context, tx bun.IDB, company *Company) (*Company, error) {
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	company.Name = strings.TrimSpace(company.Name)
	company.EnsureStatus()

	created, err := c.Repository.CreateTx(ctx, tx, company)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, NewError(ErrDuplicateCompanyName, map[string]any{"name": company.Name})
		}
		return nil, err
	}
	return created, nil
}

func (c *companies) SetManagerTx(ctx context.Context, tx bun.IDB, id, managerID uuid.UUID) error {
	res, err := tx.NewUpdate().
		Model((*Company)(nil)).
		Set("manager_id = ?", managerID).
		Set("updated_at = ?", c.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "company_id", id)
}

// UpdateStatusTx moves company from its loaded status to status. A
// concurrent change of the row makes it fail with ErrInvalidStateTransition.
func (c *companies) UpdateStatusTx(ctx context.Context, tx bun.IDB, company *Company, status Status, approvedBy *uuid.UUID) (*Company, error) {
	company.EnsureStatus()
	from := company.Status

	now := c.now()
	q := tx.NewUpdate().
		Model((*Company)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id = ?", company.ID).
		Where("status = ?", from)

	if status == StatusActive && company.ApprovedAt == nil {
		q = q.Set("approved_at = ?", now).Set("approved_by = ?", approvedBy)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	current, err := c.GetByUUIDTx(ctx, tx, company.ID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, staleStatusError(SubjectCompany, company.ID, from, current.Status, status)
	}
	return current, nil
}

func (c *companies) SetInvitationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) error {
	res, err := tx.NewUpdate().
		Model((*Company)(nil)).
		Set("invitation_code = ?", NormalizeInvitationCode(code)).
		Set("updated_at = ?", c.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "company_id", id)
}

func (c *companies) ListByStatus(ctx context.Context, status Status) ([]*Company, error) {
	records := []*Company{}
	err := c.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", status).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}
