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

// SignupResult is handed to OnResponse after a successful signup
type SignupResult struct {
	User    *User    `json:"user"`
	Company *Company `json:"company,omitempty"`
}

type SignupManagerMessage struct {
	Email              string                  `json:"email"`
	Password           string                  `json:"password"`
	FirstName          string                  `json:"first_name"`
	LastName           string                  `json:"last_name"`
	Phone              string                  `json:"phone_number"`
	CompanyName        string                  `json:"company_name"`
	CompanyDescription string                  `json:"company_description"`
	OnResponse         func(res *SignupResult) `json:"-"`
}

func (m SignupManagerMessage) Type() string { return "auth.signup.manager" }

// Validate will run validation rules
func (m SignupManagerMessage) Validate() error {
	return ValidateInput("invalid company manager signup payload", func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Email, validation.Required, is.Email, validation.Length(3, 255)),
			validation.Field(&m.Password, PasswordRules()...),
			validation.Field(&m.FirstName, validation.Required, validation.Length(1, 100)),
			validation.Field(&m.LastName, validation.Required, validation.Length(1, 100)),
			validation.Field(&m.Phone, validation.Length(0, 32), PhoneRule),
			validation.Field(&m.CompanyName, validation.Required, validation.Length(2, 255)),
			validation.Field(&m.CompanyDescription, validation.Length(0, 2000)),
		)
	})
}

// SignupManagerHandler registers a company together with its manager. Both
// start pending until a system admin approves the company.
type SignupManagerHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	activity ActivitySink
	logger   Logger
}

var _ command.Commander[SignupManagerMessage] = (*SignupManagerHandler)(nil)

// NewSignupManagerHandler creates a handler with sane defaults.
func NewSignupManagerHandler(repo RepositoryManager) *SignupManagerHandler {
	return &SignupManagerHandler{
		repo:     repo,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit signup events.
func (h *SignupManagerHandler) WithActivitySink(sink ActivitySink) *SignupManagerHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SignupManagerHandler) WithLogger(logger Logger) *SignupManagerHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *SignupManagerHandler) Execute(ctx context.Context, event SignupManagerMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during company manager signup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupManagerHandler) execute(ctx context.Context, event SignupManagerMessage) error {
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
		exists, err := h.repo.Users().EmailExistsTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
		}
		if exists {
			return NewError(ErrDuplicateEmail, map[string]any{"email": NormalizeEmail(event.Email)})
		}

		taken, err := h.repo.Companies().NameExistsTx(ctx, tx, event.CompanyName)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check company name")
		}
		if taken {
			return NewError(ErrDuplicateCompanyName, map[string]any{"name": strings.TrimSpace(event.CompanyName)})
		}

		company, err := h.repo.Companies().RegisterTx(ctx, tx, &Company{
			Name:        event.CompanyName,
			Description: strings.TrimSpace(event.CompanyDescription),
			Status:      StatusPending,
		})
		if err != nil {
			return err
		}

		user, err := h.repo.Users().RegisterTx(ctx, tx, &User{
			Email:        event.Email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(event.FirstName),
			LastName:     strings.TrimSpace(event.LastName),
			Phone:        phone,
			Role:         RoleCompanyManager,
			Status:       StatusPending,
			CompanyID:    &company.ID,
		})
		if err != nil {
			return err
		}

		if err := h.repo.Companies().SetManagerTx(ctx, tx, company.ID, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to assign company manager")
		}
		company.ManagerID = &user.ID

		result.User = user
		result.Company = company
		return nil
	})

	if err != nil {
		return asRichError(err, "company manager signup failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventManagerSignup,
		Actor:      ActorFromUser(result.User),
		ObjectType: string(SubjectCompany),
		ObjectID:   result.Company.ID.String(),
		CompanyID:  result.Company.ID.String(),
		ToStatus:   StatusPending,
	})

	if event.OnResponse != nil {
		event.OnResponse(result)
	}

	return nil
}

// hashNewPassword enforces the policy before hashing
func hashNewPassword(hasher PasswordAuthenticator, password string) (string, error) {
	if err := ValidatePasswordPolicy(password); err != nil {
		return "", err
	}

	hash, err := hasher.HashPassword(password)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	return hash, nil
}
