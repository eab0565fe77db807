package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// AdminSeed describes the system administrator created at boot
type AdminSeed struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Validate will run validation rules
func (s AdminSeed) Validate() error {
	return ValidateInput("invalid admin seed", func() error {
		return validation.ValidateStruct(&s,
			validation.Field(&s.Email, validation.Required, is.Email),
			validation.Field(&s.Password, PasswordRules()...),
		)
	})
}

// SeedAdmin creates the system administrator if no user holds its email.
// The user ID is derived from the email so every environment seeds the
// same identifier. It reports whether a user was created.
func SeedAdmin(ctx context.Context, repo RepositoryManager, seed AdminSeed, hasher PasswordAuthenticator) (bool, error) {
	if err := seed.Validate(); err != nil {
		return false, err
	}

	if hasher == nil {
		hasher = BcryptHasher{}
	}

	hash, err := hashNewPassword(hasher, seed.Password)
	if err != nil {
		return false, err
	}

	if seed.FirstName == "" {
		seed.FirstName = "System"
	}
	if seed.LastName == "" {
		seed.LastName = "Administrator"
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	created := false
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := repo.Users().EmailExistsTx(ctx, tx, seed.Email)
		if err != nil || exists {
			return err
		}

		id, err := hashid.NewUUID(NormalizeEmail(seed.Email))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive admin id")
		}

		_, err = repo.Users().RegisterTx(ctx, tx, &User{
			ID:           id,
			Email:        seed.Email,
			PasswordHash: hash,
			FirstName:    seed.FirstName,
			LastName:     seed.LastName,
			Role:         RoleSystemAdmin,
			Status:       StatusActive,
		})
		if err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		return false, asRichError(err, "failed to seed admin")
	}

	return created, nil
}
