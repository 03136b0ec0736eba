package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength bounds user, department, position and role ids
const MaxIdentifierLength = 64

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._:@\-]+$`)
	controlChars      = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateIdentifier checks an externally supplied id such as a user or role id
func ValidateIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("%s exceeds %d characters: %s", kind, MaxIdentifierLength, id)
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters: %q", kind, id)
	}
	return nil
}

// ValidateAmount rejects negative request amounts
func ValidateAmount(amount *float64) error {
	if amount == nil {
		return nil
	}
	if *amount < 0 {
		return fmt.Errorf("amount must not be negative: %.2f", *amount)
	}
	return nil
}

// SanitizeString strips control characters (newlines and tabs are kept) and
// surrounding whitespace from free-text input such as comments
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
