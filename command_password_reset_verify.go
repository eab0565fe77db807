package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type VerifyPasswordResetMessage struct {
	Token      string                                  `json:"token"`
	OnResponse func(resp *VerifyPasswordResetResponse) `json:"-"`
}

func (m VerifyPasswordResetMessage) Type() string { return "auth.password_reset.verify" }

// VerifyPasswordResetResponse tells the client whether a reset form can be shown
type VerifyPasswordResetResponse struct {
	Valid     bool      `json:"valid"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyPasswordResetHandler checks a reset token without consuming it
type VerifyPasswordResetHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

var _ command.Commander[VerifyPasswordResetMessage] = (*VerifyPasswordResetHandler)(nil)

// NewVerifyPasswordResetHandler creates a handler
func NewVerifyPasswordResetHandler(repo RepositoryManager) *VerifyPasswordResetHandler {
	return &VerifyPasswordResetHandler{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (h *VerifyPasswordResetHandler) Execute(ctx context.Context, event VerifyPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during reset token verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyPasswordResetHandler) execute(ctx context.Context, event VerifyPasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &VerifyPasswordResetResponse{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reset, err := usableResetTokenTx(ctx, tx, h.repo, event.Token, h.now())
		if err != nil {
			return err
		}

		user, err := h.repo.Users().GetByUUIDTx(ctx, tx, reset.UserID)
		if err != nil {
			if HasTextCode(err, TextCodeNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		resp.Valid = true
		resp.Email = MaskEmail(user.Email)
		resp.ExpiresAt = reset.ExpiresAt
		return nil
	})

	if err != nil {
		return asRichError(err, "failed to verify password reset token")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// MaskEmail keeps the first character of the local part: j***@example.com
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	return local[:1] + "***@" + domain
}
