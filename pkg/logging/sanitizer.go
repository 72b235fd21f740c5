package logging

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxValueLogLength is the maximum length of a caller-supplied value to log.
	MaxValueLogLength = 64
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches user:pass@host and :pass@host (redis URLs carry no user)
	connStringPattern = regexp.MustCompile(`://[^:/\s]*:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from PostgreSQL or Redis connection strings.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError returns err's message with credentials removed.
// Use this before logging any error from database or Redis operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// SanitizeValue prepares a caller-supplied value (header, cursor, path segment) for logging:
// control characters are dropped and the result is truncated.
func SanitizeValue(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return TruncateString(cleaned, MaxValueLogLength)
}

// TruncateString truncates a string to maxLen runes and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
