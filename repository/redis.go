package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	auth "github.com/goliatone/go-tenant-auth"
)

// RedisConfig holds the connection settings. URL wins over Addr when set.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings redis
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid redis url")
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reach redis")
	}
	return client, nil
}

// RedisBlacklistCache mirrors blacklisted token ids in redis with the
// remaining token lifetime as TTL.
type RedisBlacklistCache struct {
	client redis.Cmdable
	prefix string
}

var _ auth.BlacklistCache = (*RedisBlacklistCache)(nil)

func NewRedisBlacklistCache(client redis.Cmdable) *RedisBlacklistCache {
	return &RedisBlacklistCache{client: client, prefix: "blacklist:"}
}

func (c *RedisBlacklistCache) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.prefix+tokenID, "1", ttl).Err()
}

func (c *RedisBlacklistCache) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RedisLoginLimiter counts failed logins in a fixed window per key
type RedisLoginLimiter struct {
	client      redis.Cmdable
	maxAttempts int64
}

var _ auth.LoginLimiter = (*RedisLoginLimiter)(nil)

func NewRedisLoginLimiter(client redis.Cmdable, maxAttempts int) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: int64(maxAttempts)}
}

func (l *RedisLoginLimiter) Locked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Get(ctx, limiterKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return l.maxAttempts > 0 && n >= l.maxAttempts, nil
}

// RecordFailure increments the counter. The window starts on the first
// failure and is not extended by later ones.
func (l *RedisLoginLimiter) RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := limiterKey(key)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, limiterKey(key)).Err()
}

func limiterKey(key string) string {
	if strings.HasPrefix(key, "ratelimit:") {
		return key
	}
	return "ratelimit:" + key
}
