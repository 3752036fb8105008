package chat

import (
	"fmt"
	"net/http"
)

// Kind classifies a failed chat request.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindRateLimited       Kind = "rate_limited"
	KindMissingCredential Kind = "missing_credential"
	KindUpstream          Kind = "upstream"
)

// Error is a chat failure carrying the status an HTTP surface should use and
// a message that is safe to show the caller.
type Error struct {
	Kind       Kind
	Status     int
	Message    string
	State      State // last state reached before failing
	RetryAfter int   // seconds, set for KindRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg, State: StateReceived}
}
