package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the logging contract used across the package. It matches the
// go-logger glog.Logger method set so named child loggers can be passed in.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetLoginMaxAttempts() int
	GetLoginLockWindow() time.Duration
}

// TokenPair is returned on login and refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues, rotates and revokes credentials
type TokenService interface {
	TokenValidator
	Issue(ctx context.Context, user *User) (*TokenPair, error)
	IssueTx(ctx context.Context, tx bun.IDB, user *User) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken, accessToken string) (*TokenPair, error)
	Revoke(ctx context.Context, accessToken, reason string) error
	ValidateAccess(ctx context.Context, accessToken string) (AuthClaims, error)
	Logout(ctx context.Context, userID uuid.UUID, accessToken string) error
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, reason string) error
	CleanupExpired(ctx context.Context) (CleanupReport, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + line(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + line(msg, args))
}

func line(msg string, args []any) string {
	out := strings.TrimRight(msg, "\n")
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
			continue
		}
		out += fmt.Sprintf(" %v", args[i])
	}
	return out
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
