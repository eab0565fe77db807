package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	// InvitationCodeLength is the number of characters in an invitation code
	InvitationCodeLength = 6
	// InvitationCodeAttempts bounds the collision retries when generating codes
	InvitationCodeAttempts = 10
)

// ErrInvitationCodeExhausted is returned when no free code was found
var ErrInvitationCodeExhausted = goerrors.New("could not generate a unique invitation code", goerrors.CategoryInternal).
	WithCode(goerrors.CodeInternal).
	WithTextCode(TextCodeInternal)

// NormalizeInvitationCode trims and upper cases a user supplied code
func NormalizeInvitationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateInvitationCode returns a random code of upper case hex characters
func GenerateInvitationCode() (string, error) {
	buf := make([]byte, (InvitationCodeLength+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes")
	}
	return strings.ToUpper(hex.EncodeToString(buf))[:InvitationCodeLength], nil
}

// InvitationCodeGenerator produces candidate codes, swapped in tests
type InvitationCodeGenerator func() (string, error)

// uniqueInvitationCodeTx draws codes until one is not in use
func uniqueInvitationCodeTx(ctx context.Context, tx bun.IDB, companies Companies, gen InvitationCodeGenerator) (string, error) {
	if gen == nil {
		gen = GenerateInvitationCode
	}

	for range InvitationCodeAttempts {
		code, err := gen()
		if err != nil {
			return "", err
		}

		exists, err := companies.InvitationCodeExistsTx(ctx, tx, code)
		if err != nil {
			return "", err
		}

		if !exists {
			return code, nil
		}
	}

	return "", ErrInvitationCodeExhausted
}
