package workspace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProjectMembers tracks which users are allocated to a project
type ProjectMembers interface {
	AllocateTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID, userIDs ...uuid.UUID) error
	ReleaseTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID, userIDs ...uuid.UUID) error
	IsAllocatedTx(ctx context.Context, tx bun.IDB, projectID, userID uuid.UUID) (bool, error)
	UserIDsTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID) ([]uuid.UUID, error)
	ListTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID) ([]*ProjectMember, error)
}

type projectMembers struct {
	now func() time.Time
}

var _ ProjectMembers = (*projectMembers)(nil)

func NewProjectMembersRepository() ProjectMembers {
	return &projectMembers{now: func() time.Time { return time.Now().UTC() }}
}

// AllocateTx adds the users to the project, skipping existing allocations.
func (m *projectMembers) AllocateTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID, userIDs ...uuid.UUID) error {
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	existing, err := m.UserIDsTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	now := m.now()
	rows := make([]*ProjectMember, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := known[id]; ok {
			continue
		}
		rows = append(rows, &ProjectMember{
			ID:          uuid.New(),
			ProjectID:   projectID,
			UserID:      id,
			AllocatedAt: now,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	_, err = tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (m *projectMembers) ReleaseTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID, userIDs ...uuid.UUID) error {
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	_, err := tx.NewDelete().
		Model((*ProjectMember)(nil)).
		Where("project_id = ?", projectID).
		Where("user_id IN (?)", bun.In(userIDs)).
		Exec(ctx)
	return err
}

func (m *projectMembers) IsAllocatedTx(ctx context.Context, tx bun.IDB, projectID, userID uuid.UUID) (bool, error) {
	return tx.NewSelect().
		Model((*ProjectMember)(nil)).
		Where("?TableAlias.project_id = ?", projectID).
		Where("?TableAlias.user_id = ?", userID).
		Exists(ctx)
}

func (m *projectMembers) UserIDsTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID) ([]uuid.UUID, error) {
	records, err := m.ListTx(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

func (m *projectMembers) ListTx(ctx context.Context, tx bun.IDB, projectID uuid.UUID) ([]*ProjectMember, error) {
	records := []*ProjectMember{}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.project_id = ?", projectID).
		OrderExpr("?TableAlias.allocated_at ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	return records, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
