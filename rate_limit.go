package auth

import (
	"context"
	"strings"
	"time"
)

// LoginLimiter counts failed logins per key (the normalized email). When no
// limiter is configured the counters on the user row are used instead.
type LoginLimiter interface {
	Locked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// LoginLimiterKey derives the limiter key for an email
func LoginLimiterKey(email string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(email))
}

// rowLocked reports whether the user row has reached maxAttempts inside window
func rowLocked(user *User, maxAttempts int, window time.Duration, now time.Time) bool {
	if user == nil || maxAttempts <= 0 || user.LoginAttemptAt == nil {
		return false
	}

	if user.LoginAttempts < maxAttempts {
		return false
	}

	return user.LoginAttemptAt.After(now.Add(-window))
}

// rowAttemptsExpired is true when the last failure is older than window, in
// which case the counter starts over.
func rowAttemptsExpired(user *User, window time.Duration, now time.Time) bool {
	if user == nil || user.LoginAttemptAt == nil {
		return false
	}
	return !user.LoginAttemptAt.After(now.Add(-window))
}
