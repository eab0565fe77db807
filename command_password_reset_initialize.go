package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const resetTokenBytes = 32

type InitializePasswordResetMessage struct {
	Email      string                                      `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse) `json:"-"`
}

func (p InitializePasswordResetMessage) Type() string { return "auth.password_reset.request" }

// Validate will run validation rules
func (p InitializePasswordResetMessage) Validate() error {
	return ValidateInput("invalid password reset request", func() error {
		return validation.ValidateStruct(&p,
			validation.Field(&p.Email, validation.Required, is.Email),
		)
	})
}

// InitializePasswordResetResponse carries the raw token for the notifier.
// It is never rendered to API clients.
type InitializePasswordResetResponse struct {
	Token     string
	ExpiresAt time.Time
	Issued    bool
}

// InitializePasswordResetHandler creates a single use reset token. Unknown
// or blocked emails succeed silently and reveal nothing about accounts.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	activity ActivitySink
	logger   Logger
	ttl      time.Duration
	now      func() time.Time
}

var _ command.Commander[InitializePasswordResetMessage] = (*InitializePasswordResetHandler)(nil)

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, ttl time.Duration) *InitializePasswordResetHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: LogNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifier sets the notifier used to deliver the reset link.
func (h *InitializePasswordResetHandler) WithNotifier(n Notifier) *InitializePasswordResetHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &InitializePasswordResetResponse{}
	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if HasTextCode(err, TextCodeNotFound) {
				user = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		if user.Status == StatusRejected {
			user = nil
			return nil
		}

		now := h.now()
		if err := h.repo.PasswordResetTokens().InvalidateForUserTx(ctx, tx, user.ID, now); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate previous reset tokens")
		}

		raw, err := randomToken(resetTokenBytes)
		if err != nil {
			return err
		}

		record := &PasswordResetToken{
			UserID:    user.ID,
			TokenHash: HashToken(raw),
			ExpiresAt: now.Add(h.ttl),
		}

		if err := h.repo.PasswordResetTokens().SaveTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
		}

		resp.Token = raw
		resp.ExpiresAt = record.ExpiresAt
		resp.Issued = true
		return nil
	})

	if err != nil {
		return asRichError(err, "failed to initialize password reset")
	}

	if user != nil {
		notify(ctx, h.notifier, h.logger, Notification{
			Kind:      NotifyPasswordReset,
			Recipient: user.Email,
			Name:      user.FullName(),
			Data: map[string]any{
				"token":      resp.Token,
				"expires_at": resp.ExpiresAt,
			},
		})

		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType:  ActivityEventPasswordResetRequest,
			Actor:      ActorFromUser(user),
			ObjectType: string(SubjectMember),
			ObjectID:   user.ID.String(),
			CompanyID:  companyIDString(user.CompanyID),
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
