package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens persists hashed refresh tokens and their families
type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	SaveTx(ctx context.Context, tx bun.IDB, token *RefreshToken) error
	FindByHashTx(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error)
	CountActiveInFamilyTx(ctx context.Context, tx bun.IDB, family string, now time.Time) (int, error)
	// RevokeTx reports false when the token was already revoked
	RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, reason string, replacedBy *uuid.UUID) (bool, error)
	RevokeFamilyTx(ctx context.Context, tx bun.IDB, family, reason string) (int64, error)
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, reason string) (int64, error)
	DeleteStale(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error)
}

// PasswordResetTokens persists hashed single use reset tokens
type PasswordResetTokens interface {
	repository.Repository[*PasswordResetToken]

	SaveTx(ctx context.Context, tx bun.IDB, token *PasswordResetToken) error
	FindByHashTx(ctx context.Context, tx bun.IDB, hash string) (*PasswordResetToken, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, at time.Time) error
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

// BlacklistStore persists revoked access token ids
type BlacklistStore interface {
	AddTx(ctx context.Context, tx bun.IDB, entry *TokenBlacklist) error
	Contains(ctx context.Context, tokenID string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

// NewRefreshTokensRepository creates the bun backed refresh token store
func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})
	return &refreshTokens{Repository: repo, db: db}
}

func (r *refreshTokens) SaveTx(ctx context.Context, tx bun.IDB, token *RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	_, err := tx.NewInsert().Model(token).Exec(ctx)
	return err
}

func (r *refreshTokens) FindByHashTx(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return record, nil
}

func (r *refreshTokens) CountActiveInFamilyTx(ctx context.Context, tx bun.IDB, family string, now time.Time) (int, error) {
	return tx.NewSelect().
		Model((*RefreshToken)(nil)).
		Where("?TableAlias.token_family = ?", family).
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.expires_at > ?", now).
		Count(ctx)
}

func (r *refreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, reason string, replacedBy *uuid.UUID) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", time.Now().UTC()).
		Set("revoked_reason = ?", reason).
		Set("replaced_by = ?", replacedBy).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *refreshTokens) RevokeFamilyTx(ctx context.Context, tx bun.IDB, family, reason string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", time.Now().UTC()).
		Set("revoked_reason = ?", reason).
		Where("token_family = ?", family).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, reason string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", time.Now().UTC()).
		Set("revoked_reason = ?", reason).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokens) DeleteStale(ctx context.Context, now time.Time, revokedRetention time.Duration) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		WhereOr("expires_at < ?", now).
		WhereOr("revoked_at < ?", now.Add(-revokedRetention)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type passwordResetTokens struct {
	repository.Repository[*PasswordResetToken]
	db *bun.DB
}

// NewPasswordResetTokensRepository creates the bun backed reset token store
func NewPasswordResetTokensRepository(db *bun.DB) PasswordResetTokens {
	repo := repository.NewRepository[*PasswordResetToken](db, repository.ModelHandlers[*PasswordResetToken]{
		NewRecord: func() *PasswordResetToken { return &PasswordResetToken{} },
		GetID: func(t *PasswordResetToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *PasswordResetToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})
	return &passwordResetTokens{Repository: repo, db: db}
}

func (r *passwordResetTokens) SaveTx(ctx context.Context, tx bun.IDB, token *PasswordResetToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	_, err := tx.NewInsert().Model(token).Exec(ctx)
	return err
}

func (r *passwordResetTokens) FindByHashTx(ctx context.Context, tx bun.IDB, hash string) (*PasswordResetToken, error) {
	record := &PasswordResetToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return record, nil
}

func (r *passwordResetTokens) MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*PasswordResetToken)(nil)).
		Set("used_at = ?", at).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenAlreadyUsed
	}
	return nil
}

func (r *passwordResetTokens) InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*PasswordResetToken)(nil)).
		Set("used_at = ?", at).
		Where("user_id = ?", userID).
		Where("used_at IS NULL").
		Exec(ctx)
	return err
}

func (r *passwordResetTokens) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*PasswordResetToken)(nil)).
		WhereOr("expires_at < ?", now).
		WhereOr("used_at IS NOT NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type blacklistStore struct {
	db *bun.DB
}

// NewBlacklistStore creates the bun backed blacklist table store
func NewBlacklistStore(db *bun.DB) BlacklistStore {
	return &blacklistStore{db: db}
}

func (b *blacklistStore) AddTx(ctx context.Context, tx bun.IDB, entry *TokenBlacklist) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := tx.NewInsert().
		Model(entry).
		On("CONFLICT (token_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (b *blacklistStore) Contains(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	return b.db.NewSelect().
		Model((*TokenBlacklist)(nil)).
		Where("?TableAlias.token_id = ?", tokenID).
		Where("?TableAlias.expires_at > ?", now).
		Exists(ctx)
}

func (b *blacklistStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.db.NewDelete().
		Model((*TokenBlacklist)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
