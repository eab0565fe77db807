package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TxRunner runs f inside a database transaction
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	TxRunner
	Users() Users
	Companies() Companies
	RefreshTokens() RefreshTokens
	PasswordResetTokens() PasswordResetTokens
	Blacklist() Blacklist
}

// RepositoryManagerOption customizes the manager
type RepositoryManagerOption func(*mngr)

// WithManagerBlacklistOptions forwards options to the blacklist
func WithManagerBlacklistOptions(opts ...BlacklistOption) RepositoryManagerOption {
	return func(m *mngr) {
		m.blacklistOptions = append(m.blacklistOptions, opts...)
	}
}

// WithTxRetry retries whole transactions on transient database errors
func WithTxRetry(opts RetryOptions) RepositoryManagerOption {
	return func(m *mngr) {
		m.retry = &opts
	}
}

type mngr struct {
	db                  *bun.DB
	retry               *RetryOptions
	users               Users
	companies           Companies
	refreshTokens       RefreshTokens
	passwordResetTokens PasswordResetTokens
	blacklist           Blacklist
	blacklistOptions    []BlacklistOption
}

// NewRepositoryManager wires every bun repository over db
func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:                  db,
		users:               NewUsersRepository(db),
		companies:           NewCompaniesRepository(db),
		refreshTokens:       NewRefreshTokensRepository(db),
		passwordResetTokens: NewPasswordResetTokensRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.blacklist = NewBlacklist(NewBlacklistStore(db), m.blacklistOptions...)
	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.companies == nil {
		return errors.New("repository companies should be initialized")
	}

	if m.refreshTokens == nil || m.passwordResetTokens == nil || m.blacklist == nil {
		return errors.New("token repositories should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if m.retry == nil {
		return m.db.RunInTx(ctx, opts, f)
	}

	return WithRetry(ctx, *m.retry, func(ctx context.Context) error {
		return m.db.RunInTx(ctx, opts, f)
	})
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Companies() Companies {
	return m.companies
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}

func (m mngr) PasswordResetTokens() PasswordResetTokens {
	return m.passwordResetTokens
}

func (m mngr) Blacklist() Blacklist {
	return m.blacklist
}
