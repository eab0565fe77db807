package auth

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 128
)

var (
	passwordHasLetter = regexp.MustCompile(`[A-Za-z]`)
	passwordHasDigit  = regexp.MustCompile(`[0-9]`)
)

// PasswordRules are the ozzo rules every new password must satisfy
func PasswordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(PasswordMinLength, PasswordMaxLength),
		validation.Match(passwordHasLetter).Error("must contain at least one letter"),
		validation.Match(passwordHasDigit).Error("must contain at least one digit"),
	}
}

// ValidatePasswordPolicy checks a cleartext password against the policy
func ValidatePasswordPolicy(password string) error {
	if err := validation.Validate(password, PasswordRules()...); err != nil {
		return NewError(ErrPasswordPolicy, map[string]any{
			"password": err.Error(),
		})
	}
	return nil
}

// ValidatePasswordChange checks confirmation and policy for a new password
func ValidatePasswordChange(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	return ValidatePasswordPolicy(password)
}
