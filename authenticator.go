package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LoginResult is returned on a successful login
type LoginResult struct {
	User *User `json:"user"`
	*TokenPair
}

// AuthenticatorOption customizes the Authenticator
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorLogger sets the logger
func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = normalizeLogger(logger)
	}
}

// WithLoginLimiter counts failed logins outside of the user row
func WithLoginLimiter(limiter LoginLimiter) AuthenticatorOption {
	return func(a *Authenticator) {
		a.limiter = limiter
	}
}

// WithPasswordAuthenticator overrides the bcrypt hasher
func WithPasswordAuthenticator(hasher PasswordAuthenticator) AuthenticatorOption {
	return func(a *Authenticator) {
		if hasher != nil {
			a.hasher = hasher
		}
	}
}

// WithAuthenticatorActivitySink configures an ActivitySink for emitting auth events.
func WithAuthenticatorActivitySink(sink ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		a.activity = normalizeActivitySink(sink)
	}
}

// WithAuthenticatorClock injects a custom clock (useful for tests).
func WithAuthenticatorClock(clock func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if clock != nil {
			a.now = clock
		}
	}
}

// Authenticator verifies credentials and issues token pairs
type Authenticator struct {
	repo        RepositoryManager
	tokens      TokenService
	hasher      PasswordAuthenticator
	limiter     LoginLimiter
	maxAttempts int
	lockWindow  time.Duration
	logger      Logger
	activity    ActivitySink
	now         func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, tokens TokenService, cfg Config, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		repo:        repo,
		tokens:      tokens,
		hasher:      BcryptHasher{},
		maxAttempts: cfg.GetLoginMaxAttempts(),
		lockWindow:  cfg.GetLoginLockWindow(),
		logger:      defLogger{},
		activity:    noopActivitySink{},
		now:         func() time.Time { return time.Now().UTC() },
	}

	if a.lockWindow <= 0 {
		a.lockWindow = 15 * time.Minute
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// TokenService returns the TokenService used by this Authenticator
func (a *Authenticator) TokenService() TokenService {
	return a.tokens
}

// Login verifies email and password. Unknown emails and wrong passwords
// produce the same error and take comparable time.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	key := LoginLimiterKey(email)
	if a.limiter != nil && a.maxAttempts > 0 {
		locked, err := a.limiter.Locked(ctx, key)
		if err != nil {
			a.logger.Warn("login limiter unavailable", "error", err)
		} else if locked {
			a.loginFailed(ctx, nil, email, ErrRateLimited)
			return nil, ErrRateLimited
		}
	}

	user, err := a.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if !HasTextCode(err, TextCodeNotFound) {
			a.logger.Error("login lookup failed", "error", err)
			return nil, asRichError(err, "failed to login")
		}
		_ = a.hasher.ComparePasswordAndHash(password, dummyHash)
		a.recordFailure(ctx, key, nil)
		a.loginFailed(ctx, nil, email, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if a.limiter == nil && rowLocked(user, a.maxAttempts, a.lockWindow, a.now()) {
		a.loginFailed(ctx, user, email, ErrRateLimited)
		return nil, ErrRateLimited
	}

	if err := a.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		a.recordFailure(ctx, key, user)
		a.loginFailed(ctx, user, email, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	var pair *TokenPair
	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkAccountStatusTx(ctx, tx, a.repo.Companies(), user); err != nil {
			return err
		}

		var err error
		if pair, err = a.tokens.IssueTx(ctx, tx, user); err != nil {
			return err
		}

		return a.repo.Users().TrackSuccessfulLoginTx(ctx, tx, user)
	})

	if err != nil {
		a.loginFailed(ctx, user, email, err)
		return nil, asRichError(err, "failed to login")
	}

	if a.limiter != nil {
		if err := a.limiter.Reset(ctx, key); err != nil {
			a.logger.Warn("login limiter reset failed", "error", err)
		}
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Actor:      ActorFromUser(user),
		ObjectType: "user",
		ObjectID:   user.ID.String(),
		CompanyID:  companyIDString(user.CompanyID),
		OccurredAt: a.now(),
	})

	return &LoginResult{User: user, TokenPair: pair}, nil
}

func (a *Authenticator) recordFailure(ctx context.Context, key string, user *User) {
	if a.limiter != nil {
		if _, err := a.limiter.RecordFailure(ctx, key, a.lockWindow); err != nil {
			a.logger.Warn("login limiter record failed", "error", err)
		}
		return
	}

	if user == nil {
		return
	}

	if rowAttemptsExpired(user, a.lockWindow, a.now()) {
		user.LoginAttempts = 0
	}

	if err := a.repo.Users().TrackAttemptedLogin(ctx, user); err != nil {
		a.logger.Warn("failed to track login attempt", "user_id", user.ID.String(), "error", err)
	}
}

func (a *Authenticator) loginFailed(ctx context.Context, user *User, email string, cause error) {
	a.logger.Debug("login failed", "email", email, "error", cause)

	event := ActivityEvent{
		EventType:  ActivityEventLoginFailure,
		Actor:      ActorRef{Type: "anonymous"},
		ObjectType: "user",
		Metadata: map[string]any{
			"email": email,
			"error": cause.Error(),
		},
		OccurredAt: a.now(),
	}

	if user != nil {
		event.Actor = ActorFromUser(user)
		event.ObjectID = user.ID.String()
		event.CompanyID = companyIDString(user.CompanyID)
	}

	recordActivity(ctx, a.activity, a.logger, event)
}

// checkAccountStatusTx enforces user status and, for tenant roles, the status
// of the owning company.
func checkAccountStatusTx(ctx context.Context, tx bun.IDB, companies Companies, user *User) error {
	switch user.Status {
	case StatusActive:
	case StatusPending:
		return ErrAccountPending
	case StatusRejected:
		return ErrAccountRejected
	default:
		return ErrAccountInactive
	}

	if !user.Role.IsTenantScoped() {
		return nil
	}

	if user.CompanyID == nil {
		return ErrNoCompany
	}

	company, err := companies.GetByUUIDTx(ctx, tx, *user.CompanyID)
	if err != nil {
		if HasTextCode(err, TextCodeNotFound) {
			return ErrNoCompany
		}
		return err
	}

	switch company.Status {
	case StatusActive:
		return nil
	case StatusPending:
		return ErrCompanyPending
	default:
		return ErrCompanyInactive
	}
}

func companyIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
