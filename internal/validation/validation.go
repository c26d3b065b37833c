package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooShort is returned when the city length is below the minimum.
	ErrCityTooShort = errors.New("city too short")
	// ErrCityTooLong is returned when the city length exceeds the maximum.
	ErrCityTooLong = errors.New("city too long")
	// ErrCityInvalidChars is returned when the city contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")

	// ErrCountryCodeInvalid is returned for anything other than two ASCII letters.
	ErrCountryCodeInvalid = errors.New("country code must be two letters (ISO 3166-1 alpha-2)")

	ErrInvalidChoice = errors.New("invalid choice")
)

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes), and
// restricts it to letters (Unicode), digits, space, hyphen, apostrophe and period.
// Commas are rejected: the weather query uses "city,country".
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '-', '\'', '.':
		return true
	}
	return false
}

// ValidateCountryCode returns the lowercased code when input is two ASCII letters.
func ValidateCountryCode(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if len(s) != 2 {
		return "", ErrCountryCodeInvalid
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return "", ErrCountryCodeInvalid
		}
	}
	return s, nil
}

// ValidateChoice returns the lowercased value if it is one of allowed.
func ValidateChoice(field, value string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q (allowed: %s)", ErrInvalidChoice, field, value, strings.Join(allowed, ", "))
}
