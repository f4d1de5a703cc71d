package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "US"

var validate = validator.New()

func IsValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// ValidatePhoneNumber accepts an optional country code override; defaults to CountryCode.
func ValidatePhoneNumber(phoneNumber string, countryCodes ...string) error {
	countryCode := CountryCode
	if len(countryCodes) > 0 && countryCodes[0] != "" {
		countryCode = countryCodes[0]
	}

	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func SplitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func NewTrue() *bool {
	b := true
	return &b
}
