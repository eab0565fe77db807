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

type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"-"`
	AccessToken     string    `json:"-"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
	ConfirmPassword string    `json:"confirm_password"`
}

func (m ChangePasswordMessage) Type() string { return "auth.password.change" }

// Validate will run validation rules
func (m ChangePasswordMessage) Validate() error {
	return ValidateInput("invalid change password payload", func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.CurrentPassword, validation.Required),
			validation.Field(&m.NewPassword, validation.Required),
			validation.Field(&m.ConfirmPassword, validation.Required),
		)
	})
}

// ChangePasswordHandler replaces the password of an authenticated user,
// revokes their refresh tokens and blacklists the access token in use.
type ChangePasswordHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

var _ command.Commander[ChangePasswordMessage] = (*ChangePasswordHandler)(nil)

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(repo RepositoryManager, tokens TokenService) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		tokens:   tokens,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password change events.
func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password change")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	if err := ValidatePasswordChange(event.NewPassword, event.ConfirmPassword); err != nil {
		return err
	}

	if event.NewPassword == event.CurrentPassword {
		return NewError(ErrPasswordPolicy, map[string]any{
			"new_password": "must differ from the current password",
		})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByUUID(ctx, event.UserID)
	if err != nil {
		return asRichError(err, "failed to load user")
	}

	if err := h.hasher.ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := h.hasher.HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash); err != nil {
			return err
		}
		return h.tokens.RevokeAllForUserTx(ctx, tx, user.ID, RevokeReasonPasswordChange)
	})
	if err != nil {
		return asRichError(err, "failed to change password")
	}

	if event.AccessToken != "" {
		if err := h.tokens.Revoke(ctx, event.AccessToken, RevokeReasonPasswordChange); err != nil {
			h.logger.Warn("change password could not revoke access token", "user_id", user.ID.String(), "error", err)
		}
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		Actor:      ActorFromUser(user),
		ObjectType: string(SubjectMember),
		ObjectID:   user.ID.String(),
		CompanyID:  companyIDString(user.CompanyID),
	})

	return nil
}
