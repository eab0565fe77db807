package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (m FinalizePasswordResetMessage) Type() string { return "auth.password_reset.finalize" }

// Validate will run validation rules
func (m FinalizePasswordResetMessage) Validate() error {
	return ValidateInput("invalid password reset payload", func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Token, validation.Required),
			validation.Field(&m.NewPassword, validation.Required),
			validation.Field(&m.ConfirmPassword, validation.Required),
		)
	})
}

// FinalizePasswordResetHandler consumes a reset token and sets the new
// password. Every refresh token of the user is revoked.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

var _ command.Commander[FinalizePasswordResetMessage] = (*FinalizePasswordResetHandler)(nil)

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *FinalizePasswordResetHandler) WithClock(clock func() time.Time) *FinalizePasswordResetHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	if err := ValidatePasswordChange(event.NewPassword, event.ConfirmPassword); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := h.hasher.HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	var userID uuid.UUID

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := h.now()

		reset, err := usableResetTokenTx(ctx, tx, h.repo, event.Token, now)
		if err != nil {
			return err
		}

		if err := h.repo.PasswordResetTokens().MarkUsedTx(ctx, tx, reset.ID, now); err != nil {
			return err
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, reset.UserID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
		}

		if err := h.repo.PasswordResetTokens().InvalidateForUserTx(ctx, tx, reset.UserID, now); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate reset tokens")
		}

		if _, err := h.repo.RefreshTokens().RevokeAllForUserTx(ctx, tx, reset.UserID, RevokeReasonPasswordReset); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions")
		}

		userID = reset.UserID
		return nil
	})

	if err != nil {
		return asRichError(err, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		Actor:      ActorRef{ID: userID.String(), Type: "user"},
		ObjectType: string(SubjectMember),
		ObjectID:   userID.String(),
	})

	return nil
}

// usableResetTokenTx resolves a raw reset token and checks it was neither
// used nor expired.
func usableResetTokenTx(ctx context.Context, tx bun.IDB, repo RepositoryManager, raw string, now time.Time) (*PasswordResetToken, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	reset, err := repo.PasswordResetTokens().FindByHashTx(ctx, tx, HashToken(raw))
	if err != nil {
		return nil, err
	}

	if reset.UsedAt != nil {
		return nil, ErrTokenAlreadyUsed
	}

	if !now.Before(reset.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	return reset, nil
}
