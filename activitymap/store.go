package activitymap

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-tenant-auth"
)

// ActivityRecord is a row of the activity_log table
type ActivityRecord struct {
	bun.BaseModel `bun:"table:activity_log,alias:act"`
	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Event         string         `bun:"event,notnull" json:"event"`
	Verb          string         `bun:"verb,notnull" json:"verb"`
	ActorID       string         `bun:"actor_id,notnull" json:"actor_id"`
	ActorRole     string         `bun:"actor_role" json:"actor_role,omitempty"`
	Subject       string         `bun:"subject,notnull" json:"subject"`
	SubjectID     string         `bun:"subject_id" json:"subject_id,omitempty"`
	CompanyID     string         `bun:"company_id" json:"company_id,omitempty"`
	Channel       string         `bun:"channel" json:"channel,omitempty"`
	Security      bool           `bun:"security,notnull,default:false" json:"security"`
	TokenFamily   string         `bun:"token_family" json:"token_family,omitempty"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull" json:"occurred_at"`
}

// Store persists activity events. It implements auth.ActivitySink.
type Store struct {
	db   bun.IDB
	opts []Option
}

var _ auth.ActivitySink = (*Store)(nil)

func NewStore(db bun.IDB, opts ...Option) *Store {
	return &Store{db: db, opts: opts}
}

// Record flattens event into an Entry and inserts it
func (s *Store) Record(ctx context.Context, event auth.ActivityEvent) error {
	entry := NewEntry(event, s.opts...)
	record := &ActivityRecord{
		ID:          uuid.New(),
		Event:       entry.Event,
		Verb:        entry.Verb,
		ActorID:     entry.ActorID,
		ActorRole:   entry.ActorRole,
		Subject:     entry.Subject,
		SubjectID:   entry.SubjectID,
		CompanyID:   entry.CompanyID,
		Channel:     entry.Channel,
		Security:    entry.Security,
		TokenFamily: entry.Family,
		Metadata:    entry.Metadata,
		OccurredAt:  entry.OccurredAt,
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store activity")
	}
	return nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	CompanyID    string
	SubjectID    string
	Verb         string
	TokenFamily  string
	SecurityOnly bool
	Limit        int
}

// List returns the most recent records first
func (s *Store) List(ctx context.Context, filter Filter) ([]*ActivityRecord, error) {
	records := []*ActivityRecord{}
	q := s.db.NewSelect().Model(&records).OrderExpr("?TableAlias.occurred_at DESC")

	if filter.CompanyID != "" {
		q = q.Where("?TableAlias.company_id = ?", filter.CompanyID)
	}
	if filter.SubjectID != "" {
		q = q.Where("?TableAlias.subject_id = ?", filter.SubjectID)
	}
	if filter.Verb != "" {
		q = q.Where("?TableAlias.verb = ?", filter.Verb)
	}
	if filter.TokenFamily != "" {
		q = q.Where("?TableAlias.token_family = ?", filter.TokenFamily)
	}
	if filter.SecurityOnly {
		q = q.Where("?TableAlias.security = ?", true)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	if err := q.Limit(limit).Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list activity")
	}
	return records, nil
}
