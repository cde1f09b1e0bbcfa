// Package security provides validation, sanitization, and limits for queuectl.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

// Limits applied to user-supplied job fields.
const (
	// MaxJobIDLength is the maximum length for caller-supplied job ids.
	MaxJobIDLength = 255

	// MaxCommandLength is the maximum length in bytes for a job command line.
	MaxCommandLength = 1 << 16

	// MaxRetriesLimit is the hard upper bound for per-job max_retries.
	MaxRetriesLimit = 100

	// MaxErrorMessageLength is the maximum length for stored error messages.
	MaxErrorMessageLength = 500
)

// validJobID matches ids that are safe to print and embed in queries:
// alphanumeric start, then alphanumerics, hyphens, underscores, dots, colons.
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.:]*$`)

// ValidateJobID validates a caller-supplied job id.
func ValidateJobID(id string) error {
	if id == "" {
		return core.ErrInvalidSpec
	}
	if len(id) > MaxJobIDLength {
		return core.ErrInvalidSpec
	}
	if !validJobID.MatchString(id) {
		return core.ErrInvalidSpec
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Strip null bytes and control characters (except whitespace)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures a retry count is within limits.
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetriesLimit {
		return MaxRetriesLimit
	}
	return n
}
