package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type SignupMemberMessage struct {
	Email          string                  `json:"email"`
	Password       string                  `json:"password"`
	FirstName      string                  `json:"first_name"`
	LastName       string                  `json:"last_name"`
	Phone          string                  `json:"phone_number"`
	InvitationCode string                  `json:"invitation_code"`
	OnResponse     func(res *SignupResult) `json:"-"`
}

func (m SignupMemberMessage) Type() string { return "auth.signup.member" }

// Validate will run validation rules
func (m SignupMemberMessage) Validate() error {
	return ValidateInput("invalid team member signup payload", func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Email, validation.Required, is.Email, validation.Length(3, 255)),
			validation.Field(&m.Password, PasswordRules()...),
			validation.Field(&m.FirstName, validation.Required, validation.Length(1, 100)),
			validation.Field(&m.LastName, validation.Required, validation.Length(1, 100)),
			validation.Field(&m.Phone, validation.Length(0, 32), PhoneRule),
			validation.Field(&m.InvitationCode, validation.Required, validation.Length(InvitationCodeLength, InvitationCodeLength)),
		)
	})
}

// SignupMemberHandler registers a pending team member through the
// invitation code of an active company.
type SignupMemberHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

var _ command.Commander[SignupMemberMessage] = (*SignupMemberHandler)(nil)

// NewSignupMemberHandler creates a handler with sane defaults.
func NewSignupMemberHandler(repo RepositoryManager) *SignupMemberHandler {
	return &SignupMemberHandler{
		repo:     repo,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit signup events.
func (h *SignupMemberHandler) WithActivitySink(sink ActivitySink) *SignupMemberHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SignupMemberHandler) WithLogger(logger Logger) *SignupMemberHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *SignupMemberHandler) Execute(ctx context.Context, event SignupMemberMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during team member signup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupMemberHandler) execute(ctx context.Context, event SignupMemberMessage) error {
	event.InvitationCode = NormalizeInvitationCode(event.InvitationCode)
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := hashNewPassword(h.hasher, event.Password)
	if err != nil {
		return err
	}

	// already validated by PhoneRule
	phone, _ := NormalizePhone(event.Phone)

	result := &SignupResult{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		company, err := h.repo.Companies().GetByInvitationCodeTx(ctx, tx, event.InvitationCode)
		if err != nil {
			return err
		}

		// codes of pending, rejected or inactive companies are not usable
		if company.Status != StatusActive {
			return ErrInvalidInvitationCode
		}

		exists, err := h.repo.Users().EmailExistsTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
		}
		if exists {
			return NewError(ErrDuplicateEmail, map[string]any{"email": NormalizeEmail(event.Email)})
		}

		user, err := h.repo.Users().RegisterTx(ctx, tx, &User{
			Email:        event.Email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(event.FirstName),
			LastName:     strings.TrimSpace(event.LastName),
			Phone:        phone,
			Role:         RoleTeamMember,
			Status:       StatusPending,
			CompanyID:    &company.ID,
		})
		if err != nil {
			return err
		}

		result.User = user
		result.Company = company
		return nil
	})

	if err != nil {
		return asRichError(err, "team member signup failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventMemberSignup,
		Actor:      ActorFromUser(result.User),
		ObjectType: string(SubjectMember),
		ObjectID:   result.User.ID.String(),
		CompanyID:  result.Company.ID.String(),
		ToStatus:   StatusPending,
	})

	if event.OnResponse != nil {
		event.OnResponse(result)
	}

	return nil
}
