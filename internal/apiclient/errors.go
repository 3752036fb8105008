package apiclient

import (
	"fmt"
	"regexp"
)

// Kind classifies an API client failure.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindEmptyInput        Kind = "empty_input"
	KindAuthentication    Kind = "authentication"
	KindRateLimit         Kind = "upstream_rate_limit"
	KindInvalidRequest    Kind = "invalid_request"
	KindTransient         Kind = "transient"
	KindInvalidResponse   Kind = "invalid_response"
)

// Sentinels for errors.Is matching on Kind.
var (
	ErrMissingCredential = &Error{Kind: KindMissingCredential}
	ErrEmptyInput        = &Error{Kind: KindEmptyInput}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrUpstreamRateLimit = &Error{Kind: KindRateLimit}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrTransient         = &Error{Kind: KindTransient}
	ErrInvalidResponse   = &Error{Kind: KindInvalidResponse}
)

// Error is a classified API client failure.
type Error struct {
	Kind       Kind
	StatusCode int    // upstream HTTP status, 0 when no response was received
	Message    string // provider message or local description
	Err        error  // underlying transport error, if any
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

var secretPattern = regexp.MustCompile(`(sk-[A-Za-z0-9_\-*]{4,}|Bearer\s+\S+)`)

// Redact masks anything resembling an API key.
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, "[redacted]")
}

// GenericMessage is shown to end users when no safer detail is available.
const GenericMessage = "An error occurred while processing your request. Please try again later."

// UserMessage returns text that is safe to show to an end user.
// Provider messages are surfaced for non-retryable provider errors only.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindAuthentication, KindRateLimit, KindInvalidRequest:
		if e.Message != "" {
			return Redact(e.Message)
		}
	}
	return GenericMessage
}
