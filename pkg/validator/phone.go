package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyPhone    = errors.New("phone number cannot be empty")
	ErrInvalidFormat = errors.New("phone number can only contain digits")
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPrefix = errors.New("phone number must start with 03, 05, 07, 08 or 09")
)

// mobile network prefixes after the leading 0
var validPrefixes = map[byte]string{
	'3': "Viettel",
	'5': "Vietnamobile",
	'7': "Mobifone",
	'8': "Vinaphone",
	'9': "Mixed",
}

var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator validates Vietnamese mobile numbers
type PhoneValidator struct{}

func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate accepts 0912345678, 091 234 5678, +84 91 234 5678 and similar,
// returning the national form (10 digits, leading 0)
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}
	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}
	if sanitized[0] != '0' {
		return "", ErrInvalidPrefix
	}
	if _, ok := validPrefixes[sanitized[1]]; !ok {
		return "", ErrInvalidPrefix
	}
	return sanitized, nil
}

// Sanitize strips separators and converts the 84 country code to a leading 0
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").Replace(phone)
	if strings.HasPrefix(phone, "84") && len(phone) == 11 {
		phone = "0" + phone[2:]
	}
	return phone
}

// ToInternational returns the number as 84XXXXXXXXX for SMS gateways
func (v *PhoneValidator) ToInternational(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return "84" + sanitized[1:], nil
}

// GetOperator returns the carrier family for the prefix
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return validPrefixes[sanitized[1]], nil
}

func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
