package httpbind

import (
	"fmt"
	"net/http"
)

// HTTPError is an error answered with a specific status. Handlers return
// it to abort a request with that status.
type HTTPError struct {
	Status  int
	Message string
	// Err is the failure behind a 500.
	Err error
}

// NewHTTPError creates an HTTPError. An empty message is replaced by the
// status text.
func NewHTTPError(status int, message string) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
