package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// BlacklistCache is a fast lookup layer in front of the blacklist table,
// typically Redis.
type BlacklistCache interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

// Blacklist tracks revoked access tokens until their natural expiry
type Blacklist interface {
	// AddTx writes the table only, see Cache
	AddTx(ctx context.Context, tx bun.IDB, entry *TokenBlacklist) error
	// Cache mirrors committed entries into the cache. Nil entries are skipped.
	Cache(ctx context.Context, entries ...*TokenBlacklist)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// BlacklistOption customizes the blacklist
type BlacklistOption func(*blacklist)

// WithBlacklistCache layers a cache in front of the table
func WithBlacklistCache(cache BlacklistCache) BlacklistOption {
	return func(b *blacklist) {
		b.cache = cache
	}
}

// WithBlacklistLogger sets the logger used for cache failures
func WithBlacklistLogger(logger Logger) BlacklistOption {
	return func(b *blacklist) {
		b.logger = normalizeLogger(logger)
	}
}

type blacklist struct {
	store  BlacklistStore
	cache  BlacklistCache
	logger Logger
	now    func() time.Time
}

// NewBlacklist creates a Blacklist backed by store. The table stays the
// source of truth; cache errors degrade to table lookups.
func NewBlacklist(store BlacklistStore, opts ...BlacklistOption) Blacklist {
	b := &blacklist{
		store:  store,
		logger: defLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *blacklist) AddTx(ctx context.Context, tx bun.IDB, entry *TokenBlacklist) error {
	return b.store.AddTx(ctx, tx, entry)
}

func (b *blacklist) Cache(ctx context.Context, entries ...*TokenBlacklist) {
	if b.cache == nil {
		return
	}

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		ttl := entry.ExpiresAt.Sub(b.now())
		if ttl <= 0 {
			continue
		}

		if err := b.cache.Add(ctx, entry.TokenID, ttl); err != nil {
			b.logger.Warn("blacklist cache add failed", "token_id", entry.TokenID, "error", err)
		}
	}
}

func (b *blacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	if b.cache != nil {
		hit, err := b.cache.Contains(ctx, tokenID)
		if err != nil {
			b.logger.Warn("blacklist cache lookup failed", "token_id", tokenID, "error", err)
		} else if hit {
			return true, nil
		}
	}

	return b.store.Contains(ctx, tokenID, b.now())
}

func (b *blacklist) Purge(ctx context.Context, now time.Time) (int64, error) {
	return b.store.DeleteExpired(ctx, now)
}
