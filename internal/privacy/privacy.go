// Package privacy sanitizes broker and storage URLs before they reach logs,
// error reports or printed configuration.
package privacy

import (
	"net/url"
	"regexp"
)

// urlPattern finds URLs inside free text.
var urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|tls|mqtts?|wss?)://\S+`)

const (
	redactedUser  = "redacted"
	redactedQuery = "[REDACTED]"
)

// SanitizeURL removes credentials and the query string from rawURL while
// keeping scheme, host, port and path. Strings that do not parse as an
// absolute URL are returned unchanged.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}

	if u.User != nil {
		u.User = url.User(redactedUser)
	}
	u.Fragment = ""
	u.ForceQuery = false
	if u.RawQuery != "" {
		u.RawQuery = ""
		return u.String() + "?" + redactedQuery
	}
	return u.String()
}

// ScrubMessage sanitizes every URL found in message.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, SanitizeURL)
}

// SanitizedError keeps the original error for errors.Is and errors.As but
// reports a scrubbed message.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

// Error returns the scrubbed message.
func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

// Unwrap returns the original error.
func (e *SanitizedError) Unwrap() error {
	return e.original
}

// WrapError scrubs URLs from err's message. It returns nil for nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(err.Error()),
	}
}
