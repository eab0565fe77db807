package auth

import (
	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// requiredUUID rejects the zero UUID, which validation.Required accepts
var requiredUUID = validation.NotIn(uuid.Nil).Error("cannot be blank")

// ValidateInput runs ozzo rules and returns a 400 VALIDATION_ERROR carrying
// the per field messages, or nil.
func ValidateInput(msg string, fn func() error) error {
	if err := goerrors.ValidateWithOzzo(fn, msg); err != nil {
		return err.WithCode(goerrors.CodeBadRequest).WithTextCode(TextCodeValidation)
	}
	return nil
}
