package auth

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// RetryOptions configures the exponential backoff used for transient
// database failures.
type RetryOptions struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryOptions retries three times starting at 50ms
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// WithRetry runs op and retries it with exponential backoff while it fails
// with a transient database error. Any other error is returned at once.
func WithRetry(ctx context.Context, opts RetryOptions, op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		exp.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		exp.MaxInterval = opts.MaxInterval
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, opts.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransientDBError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

var transientPgCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"57P01": {}, // admin_shutdown
	"53300": {}, // too_many_connections
}

// IsTransientDBError reports whether err is worth retrying
func IsTransientDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := transientPgCodes[pgErr.Code]; ok {
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "connection reset by peer")
}
