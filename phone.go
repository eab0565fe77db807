package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is the region assumed for numbers written without a
// country calling code.
var DefaultPhoneRegion = "US"

var errInvalidPhone = errors.New("must be a valid phone number")

// NormalizePhone parses raw and returns it in E.164 form. Blank input
// returns an empty string.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return "", errInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// PhoneRule accepts blank values and numbers NormalizePhone can parse
var PhoneRule = validation.By(func(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case *string:
		if v == nil {
			return nil
		}
		raw = *v
	default:
		return errInvalidPhone
	}
	_, err := NormalizePhone(raw)
	return err
})
