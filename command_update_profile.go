package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateProfileMessage edits the name and phone of a user. Nil fields are
// left untouched.
type UpdateProfileMessage struct {
	Actor      Principal   `json:"-"`
	UserID     uuid.UUID   `json:"-"`
	FirstName  *string     `json:"first_name"`
	LastName   *string     `json:"last_name"`
	Phone      *string     `json:"phone_number"`
	OnResponse func(*User) `json:"-"`
}

func (m UpdateProfileMessage) Type() string { return "auth.profile.update" }

// Validate will run validation rules
func (m UpdateProfileMessage) Validate() error {
	return ValidateInput("invalid profile payload", func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.UserID, requiredUUID),
			validation.Field(&m.FirstName, notBlankWhenSet, validation.Length(1, 100)),
			validation.Field(&m.LastName, notBlankWhenSet, validation.Length(1, 100)),
			validation.Field(&m.Phone, validation.Length(0, 32), PhoneRule),
		)
	})
}

// notBlankWhenSet rejects pointers to blank strings, nil is allowed
var notBlankWhenSet = validation.By(func(value any) error {
	if v, ok := value.(*string); ok && v != nil && strings.TrimSpace(*v) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// UpdateProfileHandler lets users edit their own profile and managers edit
// the members of their company.
type UpdateProfileHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

var _ command.Commander[UpdateProfileMessage] = (*UpdateProfileHandler)(nil)

func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *UpdateProfileHandler) WithActivitySink(sink ActivitySink) *UpdateProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during profile update")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var updated *User
	var changed []string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		updated, changed = nil, nil

		user, err := h.repo.Users().GetByUUIDTx(ctx, tx, event.UserID)
		if err != nil {
			return err
		}

		if err := canEditProfile(event.Actor, user); err != nil {
			return err
		}

		if event.FirstName != nil {
			user.FirstName = strings.TrimSpace(*event.FirstName)
			changed = append(changed, "first_name")
		}
		if event.LastName != nil {
			user.LastName = strings.TrimSpace(*event.LastName)
			changed = append(changed, "last_name")
		}
		if event.Phone != nil {
			// already validated by PhoneRule
			user.Phone, _ = NormalizePhone(*event.Phone)
			changed = append(changed, "phone_number")
		}

		if len(changed) == 0 {
			updated = user
			return nil
		}

		updated, err = h.repo.Users().UpdateProfileTx(ctx, tx, user, changed...)
		return err
	})
	if err != nil {
		return asRichError(err, "failed to update profile")
	}

	if len(changed) > 0 {
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType:  ActivityEventProfileUpdated,
			Actor:      event.Actor.Ref(),
			ObjectType: string(SubjectMember),
			ObjectID:   updated.ID.String(),
			CompanyID:  companyIDString(updated.CompanyID),
			Metadata:   map[string]any{"fields": changed},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(updated)
	}
	return nil
}

// canEditProfile allows self edits, managers on members of their own
// company and admins on anyone.
func canEditProfile(actor Principal, user *User) error {
	if actor.ID == user.ID || actor.Is(RoleSystemAdmin) {
		return nil
	}

	if !actor.AtLeast(RoleCompanyManager) || user.Role == RoleSystemAdmin {
		return ErrForbidden
	}

	if user.CompanyID == nil || !actor.InCompany(*user.CompanyID) {
		return NewError(ErrForbidden, map[string]any{
			"reason":  "user belongs to another company",
			"user_id": user.ID.String(),
		})
	}
	return nil
}
