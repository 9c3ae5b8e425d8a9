package util

import (
	"regexp"
	"strings"
)

var (
	tenDigits  = regexp.MustCompile(`^\d{10}$`)
	sixDigits  = regexp.MustCompile(`^\d{6}$`)
	e164Number = regexp.MustCompile(`^\+\d{8,15}$`)
)

// DigitsOnly strips every non-digit from s and truncates the result to max digits.
// A max of zero or less keeps every digit.
func DigitsOnly(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if max > 0 && b.Len() >= max {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatPhone groups a ten digit number as 3-3-4 (e.g. 987-654-3210).
// Anything that is not exactly ten digits is returned unchanged.
func FormatPhone(digits string) string {
	if !tenDigits.MatchString(digits) {
		return digits
	}
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
}

// IsPhoneDigits reports whether s is exactly ten decimal digits.
func IsPhoneDigits(s string) bool {
	return tenDigits.MatchString(s)
}

// IsOTPCode reports whether s is exactly six decimal digits.
func IsOTPCode(s string) bool {
	return sixDigits.MatchString(s)
}

// IsE164 reports whether s looks like a full international number (+ and 8-15 digits).
func IsE164(s string) bool {
	return e164Number.MatchString(s)
}

// IsDigit reports whether s is a single decimal digit.
func IsDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}

// SanitizeInput trims surrounding whitespace.
func SanitizeInput(s string) string {
	return strings.TrimSpace(s)
}
