package security

import (
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation errors returned by the Clean* helpers.
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrInvalidUUID  = errors.New("invalid uuid")
	ErrTooLong      = errors.New("value exceeds maximum length")
)

const (
	maxTextLen   = 10000
	maxSearchLen = 200
	maxEmailLen  = 254
)

var (
	scriptTagRe    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	eventHandlerRe = regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsProtocolRe   = regexp.MustCompile(`(?i)javascript\s*:`)
	sqlTokenRe     = regexp.MustCompile(`(?i)(--|;|/\*|\*/|\bunion\s+select\b|\bdrop\s+table\b|\bxp_\w+)`)
	controlCharRe  = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")
	emailRe        = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRe        = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// CleanText prepares free-form plain text for storage and display:
// control characters removed, HTML entity-escaped, trimmed, bounded.
// These helpers are defense-in-depth; the stores always use parameterized
// queries.
func CleanText(s string) string {
	s = controlCharRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > maxTextLen {
		s = s[:maxTextLen]
	}
	return html.EscapeString(s)
}

// CleanRichText keeps markup but strips script tags, inline event handlers,
// and javascript: URLs.
func CleanRichText(s string) string {
	s = controlCharRe.ReplaceAllString(s, "")
	s = scriptTagRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	s = jsProtocolRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if len(s) > maxTextLen {
		s = s[:maxTextLen]
	}
	return s
}

// CleanSearchQuery strips common SQL token patterns from a user-supplied
// search string and bounds its length.
func CleanSearchQuery(s string) string {
	s = controlCharRe.ReplaceAllString(s, "")
	s = sqlTokenRe.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSearchLen {
		s = s[:maxSearchLen]
	}
	return s
}

// CleanEmail normalizes and validates an email address.
func CleanEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > maxEmailLen {
		return "", ErrTooLong
	}
	if !emailRe.MatchString(s) {
		return "", ErrInvalidEmail
	}
	return s, nil
}

// CleanPhone normalizes a phone number to digits with an optional leading +.
func CleanPhone(s string) (string, error) {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, drop
		default:
			return "", ErrInvalidPhone
		}
	}
	out := b.String()
	if !phoneRe.MatchString(out) {
		return "", ErrInvalidPhone
	}
	return out, nil
}

// CleanUUID validates and canonicalizes a UUID string.
func CleanUUID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidUUID
	}
	return id.String(), nil
}
