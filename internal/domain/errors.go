package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed backend request.
type ErrorKind string

const (
	// ErrNetwork means the backend could not be reached (DNS, dial, reset).
	ErrNetwork ErrorKind = "network"
	// ErrTimeout means the request exceeded the gateway's deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrAPI means the backend answered with a non-success HTTP or
	// envelope status.
	ErrAPI ErrorKind = "api"
	// ErrValidation means the caller's input was rejected before any
	// request was issued.
	ErrValidation ErrorKind = "validation"
)

// RequestError is the typed failure every gateway call returns. It carries
// enough context for the caller to decide on user messaging.
type RequestError struct {
	Kind     ErrorKind
	Endpoint string
	Status   int    // HTTP status, when Kind is ErrAPI
	Message  string // server-provided or validation message
	Err      error  // underlying transport error, if any
}

func (e *RequestError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d): %s", e.Kind, e.Endpoint, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Endpoint, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Endpoint)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or "" when err is not a
// RequestError.
func KindOf(err error) ErrorKind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// ValidationError builds a validation failure for bad caller input.
func ValidationError(endpoint, message string) *RequestError {
	return &RequestError{Kind: ErrValidation, Endpoint: endpoint, Message: message}
}
