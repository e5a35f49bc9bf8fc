package util

import (
	"html"
	"strings"
)

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// NormalizeUsername upper-cases a username for case-insensitive storage and
// lookups. Returns false if the name is empty or contains anything other than
// letters and digits.
func NormalizeUsername(username string) (string, bool) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return "", false
		}
	}
	return strings.ToUpper(username), true
}

// NormalizePhone converts user-entered phone numbers to E.164. Exactly 10
// national digits get a +1 prefix; 11 digits starting with country code 1 get
// a bare +. Any other digit count is rejected.
func NormalizePhone(phone string) (string, bool) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d, true
	case len(d) == 11 && d[0] == '1':
		return "+" + d, true
	default:
		return "", false
	}
}
