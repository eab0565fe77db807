package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation             = "VALIDATION_ERROR"
	TextCodeUnauthenticated        = "AUTHENTICATION_REQUIRED"
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeTokenRevoked           = "TOKEN_REVOKED"
	TextCodeTokenMalformed         = "TOKEN_MALFORMED"
	TextCodeInvalidToken           = "INVALID_TOKEN"
	TextCodeTokenReuse             = "TOKEN_REUSE_DETECTED"
	TextCodeTokenAlreadyUsed       = "TOKEN_ALREADY_USED"
	TextCodeForbidden              = "FORBIDDEN"
	TextCodeAccountPending         = "ACCOUNT_PENDING"
	TextCodeAccountInactive        = "ACCOUNT_INACTIVE"
	TextCodeAccountRejected        = "ACCOUNT_REJECTED"
	TextCodeNoCompany              = "NO_COMPANY"
	TextCodeCompanyPending         = "COMPANY_PENDING"
	TextCodeCompanyInactive        = "COMPANY_INACTIVE"
	TextCodeNotFound               = "NOT_FOUND"
	TextCodeInvalidInvitationCode  = "INVALID_INVITATION_CODE"
	TextCodeDuplicateEmail         = "DUPLICATE_EMAIL"
	TextCodeDuplicateCompanyName   = "DUPLICATE_COMPANY_NAME"
	TextCodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	TextCodePasswordPolicy         = "PASSWORD_POLICY"
	TextCodePasswordMismatch       = "PASSWORD_MISMATCH"
	TextCodeRateLimited            = "RATE_LIMITED"
	TextCodeInternal               = "INTERNAL_ERROR"
)

var (
	// ErrUnauthenticated is returned when a request carries no usable credentials
	ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeUnauthenticated)

	// ErrInvalidCredentials is returned for unknown identifiers and wrong
	// passwords alike so callers cannot enumerate accounts.
	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeInvalidCredentials)

	ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeTokenExpired)

	ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeTokenRevoked)

	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeTokenMalformed)

	// ErrInvalidToken covers unknown, expired or rotated refresh tokens
	ErrInvalidToken = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeInvalidToken)

	// ErrTokenReuse signals that a rotated refresh token was presented again
	ErrTokenReuse = goerrors.New("refresh token reuse detected, all sessions in this family were revoked", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(TextCodeTokenReuse)

	ErrTokenAlreadyUsed = goerrors.New("token has already been used", goerrors.CategoryConflict).
				WithCode(http.StatusGone).
				WithTextCode(TextCodeTokenAlreadyUsed)

	ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(TextCodeForbidden)

	ErrAccountPending = goerrors.New("account is pending approval", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeAccountPending)

	ErrAccountInactive = goerrors.New("account is inactive", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeAccountInactive)

	ErrAccountRejected = goerrors.New("account registration was rejected", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeAccountRejected)

	ErrNoCompany = goerrors.New("account is not associated with a company", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(TextCodeNoCompany)

	ErrCompanyPending = goerrors.New("company is pending approval", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeCompanyPending)

	ErrCompanyInactive = goerrors.New("company is inactive", goerrors.CategoryAuthz).
				WithCode(goerrors.CodeForbidden).
				WithTextCode(TextCodeCompanyInactive)

	ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidation)

	ErrNotFound = goerrors.New("resource not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode(TextCodeNotFound)

	ErrInvalidInvitationCode = goerrors.New("invalid invitation code", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithTextCode(TextCodeInvalidInvitationCode)

	ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithTextCode(TextCodeDuplicateEmail)

	ErrDuplicateCompanyName = goerrors.New("company name is already registered", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithTextCode(TextCodeDuplicateCompanyName)

	ErrInvalidStateTransition = goerrors.New("invalid state transition", goerrors.CategoryConflict).
					WithCode(goerrors.CodeConflict).
					WithTextCode(TextCodeInvalidStateTransition)

	ErrPasswordPolicy = goerrors.New("password does not meet the policy", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodePasswordPolicy)

	ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodePasswordMismatch)

	ErrRateLimited = goerrors.New("too many attempts, try again later", goerrors.CategoryRateLimit).
			WithCode(http.StatusTooManyRequests).
			WithTextCode(TextCodeRateLimited)
)

// NewError returns a fresh copy of base carrying metadata. Sentinels are
// shared, so metadata is never attached to them directly.
func NewError(base *goerrors.Error, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(base.Message, base.Category).
		WithCode(base.Code).
		WithTextCode(base.TextCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// HasTextCode reports whether err is a rich error with the given text code
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// asRichError maps err into the taxonomy, wrapping unknown errors as internal
func asRichError(err error, msg string) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}
