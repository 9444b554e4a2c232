package utils

import (
	"regexp"
	"strings"
)

var (
	emailShapeRegex   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	gmailAddressRegex = regexp.MustCompile(`^[^\s@]+@gmail\.com$`)
)

// IsValidEmail reports whether s has the basic local@domain.tld shape.
func IsValidEmail(s string) bool {
	return emailShapeRegex.MatchString(s)
}

// IsGmailAddress reports whether s is a plausible @gmail.com mailbox.
func IsGmailAddress(s string) bool {
	return gmailAddressRegex.MatchString(s)
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := []rune(parts[0])
	if len(name) > 2 {
		return string(name[:2]) + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
